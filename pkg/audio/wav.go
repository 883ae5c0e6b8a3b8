package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the RIFF/WAVE header prepended by WrapPCM.
const HeaderSize = 44

// wavHeader is a standard 44-byte RIFF/WAVE header for uncompressed PCM.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // exact payload size in bytes
}

// WrapPCM prepends a RIFF/WAVE header (mono, 16-bit, 48 kHz) to raw PCM16
// bytes received from the agent. The data-length field is set to exactly
// len(raw); the returned buffer is len(raw)+44 bytes.
func WrapPCM(raw []byte) []byte {
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(raw)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      SampleRate * Channels * BitsPerSample / 8,
		BlockAlign:    Channels * BitsPerSample / 8,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(raw)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(raw)))
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(raw)
	return buf.Bytes()
}

// DecodePCM validates a wrapped buffer and returns its PCM16 samples.
// It rejects buffers that are too short, carry the wrong magic values, or
// whose data-length field does not match the actual payload.
func DecodePCM(data []byte) ([]int16, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("audio: buffer too short for WAV header: %d bytes", len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("audio: read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE buffer")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("audio: unsupported audio format %d", header.AudioFormat)
	}

	payload := data[HeaderSize:]
	if int(header.Subchunk2Size) != len(payload) {
		return nil, fmt.Errorf("audio: data length %d does not match payload %d",
			header.Subchunk2Size, len(payload))
	}
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("audio: truncated payload: %d bytes is not a whole sample count", len(payload))
	}

	return BytesToSamples(payload), nil
}
