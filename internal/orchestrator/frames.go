package orchestrator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/types"
)

// SendFunc delivers one outbound text frame to the client. The gateway
// supplies a function backed by its per-connection writer goroutine, so
// concurrent callers never interleave frames on the wire.
type SendFunc func(payload []byte) error

// Speaker labels for transcript_update frames.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

type stateFrame struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type transcriptFrame struct {
	Type string         `json:"type"`
	Data transcriptData `json:"data"`
}

type transcriptData struct {
	ID        string `json:"id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsFinal   bool   `json:"is_final"`
}

type audioFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type audioMetricsFrame struct {
	Type string        `json:"type"`
	Data audio.Metrics `json:"data"`
}

type vadStatusFrame struct {
	Type string        `json:"type"`
	Data vadStatusData `json:"data"`
}

type vadStatusData struct {
	IsSpeech    bool `json:"is_speech"`
	SpeechEnded bool `json:"speech_ended"`
}

type messageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StateFrame encodes a state_change frame.
func StateFrame(state types.SessionState) []byte {
	return mustMarshal(stateFrame{Type: "state_change", State: state.String()})
}

// TranscriptFrame encodes a transcript_update frame. The id is
// "{speaker}_{unix_ms}" so the client can replace partials in place.
func TranscriptFrame(speaker, text string, ts time.Time, isFinal bool) []byte {
	return mustMarshal(transcriptFrame{
		Type: "transcript_update",
		Data: transcriptData{
			ID:        fmt.Sprintf("%s_%d", speaker, ts.UnixMilli()),
			Speaker:   speaker,
			Text:      text,
			Timestamp: ts.UTC().Format(time.RFC3339),
			IsFinal:   isFinal,
		},
	})
}

// AudioFrame encodes synthesized audio as a base64 audio frame.
func AudioFrame(clip []byte) []byte {
	return mustMarshal(audioFrame{
		Type: "audio",
		Data: base64.StdEncoding.EncodeToString(clip),
	})
}

// AudioMetricsFrame encodes per-fragment quality metrics.
func AudioMetricsFrame(m audio.Metrics) []byte {
	return mustMarshal(audioMetricsFrame{Type: "audio_metrics", Data: m})
}

// VADStatusFrame encodes the per-fragment voice-activity report.
func VADStatusFrame(isSpeech, speechEnded bool) []byte {
	return mustMarshal(vadStatusFrame{
		Type: "vad_status",
		Data: vadStatusData{IsSpeech: isSpeech, SpeechEnded: speechEnded},
	})
}

// InterruptAckFrame acknowledges a barge-in or interrupt control message.
func InterruptAckFrame(message string) []byte {
	return mustMarshal(messageFrame{Type: "interrupt_ack", Message: message})
}

// ErrorFrame reports a fatal turn error to the client.
func ErrorFrame(message string) []byte {
	return mustMarshal(messageFrame{Type: "error", Message: message})
}

// mustMarshal encodes a frame struct. The frame types contain nothing that
// can fail to marshal.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("orchestrator: marshal frame: %v", err))
	}
	return b
}

// ControlMessage is an inbound text JSON frame from the client.
type ControlMessage struct {
	Type string `json:"type"`
}

// ParseControl decodes an inbound control frame.
func ParseControl(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("orchestrator: parse control: %w", err)
	}
	return msg, nil
}
