package agent

import "encoding/json"

// Inbound control message types. Unrecognized types are ignored so newer
// servers can add events without breaking older clients.
const (
	TypeSettings             = "Settings"
	TypeWelcome              = "Welcome"
	TypeConversationText     = "ConversationText"
	TypeUserStartedSpeaking  = "UserStartedSpeaking"
	TypeAgentStartedSpeaking = "AgentStartedSpeaking"
	TypeAgentAudioDone       = "AgentAudioDone"
	TypeError                = "Error"
)

// Provider types the hosted service expects in the Settings message.
const (
	providerListen = "deepgram"
	providerThink  = "open_ai"
	providerSpeak  = "deepgram"
)

// settingsMessage is the one-time configuration sent when the transport
// opens, declaring the audio encoding and the three model selections.
type settingsMessage struct {
	Type  string         `json:"type"`
	Audio audioSettings  `json:"audio"`
	Agent agentPipelines `json:"agent"`
}

type audioSettings struct {
	Input  audioFormat  `json:"input"`
	Output outputFormat `json:"output"`
}

type audioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type outputFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container"`
}

type agentPipelines struct {
	Listen listenSettings `json:"listen"`
	Think  thinkSettings  `json:"think"`
	Speak  speakSettings  `json:"speak"`
}

type listenSettings struct {
	Provider provider `json:"provider"`
}

type thinkSettings struct {
	Provider provider `json:"provider"`
	Prompt   string   `json:"prompt"`
}

type speakSettings struct {
	Provider provider `json:"provider"`
}

type provider struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// newSettings composes the Settings message from a config snapshot. Both
// directions are uncompressed linear16 at 48 kHz; output audio arrives
// with no container framing.
func newSettings(cfg Config) settingsMessage {
	return settingsMessage{
		Type: TypeSettings,
		Audio: audioSettings{
			Input:  audioFormat{Encoding: "linear16", SampleRate: 48000},
			Output: outputFormat{Encoding: "linear16", SampleRate: 48000, Container: "none"},
		},
		Agent: agentPipelines{
			Listen: listenSettings{Provider: provider{Type: providerListen, Model: cfg.STTModel}},
			Think: thinkSettings{
				Provider: provider{Type: providerThink, Model: cfg.LLMModel},
				Prompt:   cfg.Prompt(),
			},
			Speak: speakSettings{Provider: provider{Type: providerSpeak, Model: cfg.TTSModel}},
		},
	}
}

// inboundMessage carries the fields the client interprets from any
// inbound control message. Everything else is left in the raw payload.
type inboundMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func parseInbound(data []byte) (inboundMessage, error) {
	var msg inboundMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
