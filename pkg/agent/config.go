package agent

// Config is the per-session configuration: the three model selections and
// the two prompt guides. It is read once when the Settings message is
// composed; changing it later never affects an in-flight session.
type Config struct {
	STTModel      string `json:"stt_model" yaml:"stt_model"`
	LLMModel      string `json:"llm_model" yaml:"llm_model"`
	TTSModel      string `json:"tts_model" yaml:"tts_model"`
	BehaviorGuide string `json:"behavior_guide" yaml:"behavior_guide"`
	ScriptGuide   string `json:"script_guide" yaml:"script_guide"`
}

// DefaultConfig returns the shipped model selections and guide texts.
func DefaultConfig() Config {
	return Config{
		STTModel: "nova-3",
		LLMModel: "gpt-5-mini",
		TTSModel: "aura-asteria-en",
		BehaviorGuide: "You are a friendly voice assistant. Keep answers short and " +
			"conversational; one or two sentences unless asked for detail.",
		ScriptGuide: "Greet the caller, answer their questions, and close politely " +
			"when the conversation winds down.",
	}
}

// Prompt composes the full system prompt: the behavior guide followed by
// the script guide, each under its own delimiter, in that order.
func (c Config) Prompt() string {
	return "=== BEHAVIOR GUIDE ===\n" + c.BehaviorGuide +
		"\n\n=== SCRIPT GUIDE ===\n" + c.ScriptGuide
}

// ConfigUpdate is a partial config change; nil fields are left untouched.
type ConfigUpdate struct {
	STTModel      *string `json:"stt_model,omitempty"`
	LLMModel      *string `json:"llm_model,omitempty"`
	TTSModel      *string `json:"tts_model,omitempty"`
	BehaviorGuide *string `json:"behavior_guide,omitempty"`
	ScriptGuide   *string `json:"script_guide,omitempty"`
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.STTModel != nil {
		c.STTModel = *u.STTModel
	}
	if u.LLMModel != nil {
		c.LLMModel = *u.LLMModel
	}
	if u.TTSModel != nil {
		c.TTSModel = *u.TTSModel
	}
	if u.BehaviorGuide != nil {
		c.BehaviorGuide = *u.BehaviorGuide
	}
	if u.ScriptGuide != nil {
		c.ScriptGuide = *u.ScriptGuide
	}
	return c
}
