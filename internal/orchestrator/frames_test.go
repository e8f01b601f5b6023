package orchestrator

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/voxwire/voxwire/pkg/types"
)

func TestStateFrame(t *testing.T) {
	var frame struct {
		Type  string `json:"type"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(StateFrame(types.StateThinking), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != "state_change" {
		t.Errorf("Type = %q, want %q", frame.Type, "state_change")
	}
	if frame.State != "thinking" {
		t.Errorf("State = %q, want %q", frame.State, "thinking")
	}
}

func TestTranscriptFrame(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	var frame struct {
		Type string `json:"type"`
		Data struct {
			ID        string `json:"id"`
			Speaker   string `json:"speaker"`
			Text      string `json:"text"`
			Timestamp string `json:"timestamp"`
			IsFinal   bool   `json:"is_final"`
		} `json:"data"`
	}
	payload := TranscriptFrame(SpeakerUser, "hello there", ts, true)
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if frame.Type != "transcript_update" {
		t.Errorf("Type = %q, want %q", frame.Type, "transcript_update")
	}
	wantID := "user_" + "1773480413000"
	if frame.Data.ID != wantID {
		t.Errorf("ID = %q, want %q", frame.Data.ID, wantID)
	}
	if frame.Data.Speaker != SpeakerUser {
		t.Errorf("Speaker = %q, want %q", frame.Data.Speaker, SpeakerUser)
	}
	if frame.Data.Text != "hello there" {
		t.Errorf("Text = %q, want %q", frame.Data.Text, "hello there")
	}
	if frame.Data.Timestamp != "2026-03-14T09:26:53Z" {
		t.Errorf("Timestamp = %q, want RFC3339 UTC", frame.Data.Timestamp)
	}
	if !frame.Data.IsFinal {
		t.Error("IsFinal = false, want true")
	}
}

func TestAudioFrameRoundTripsBase64(t *testing.T) {
	clip := []byte{0x00, 0x01, 0xFF, 0x7F}

	var frame struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(AudioFrame(clip), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != "audio" {
		t.Errorf("Type = %q, want %q", frame.Type, "audio")
	}
	decoded, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if string(decoded) != string(clip) {
		t.Errorf("decoded = %v, want %v", decoded, clip)
	}
}

func TestVADStatusFrame(t *testing.T) {
	var frame struct {
		Type string `json:"type"`
		Data struct {
			IsSpeech    bool `json:"is_speech"`
			SpeechEnded bool `json:"speech_ended"`
		} `json:"data"`
	}
	if err := json.Unmarshal(VADStatusFrame(false, true), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != "vad_status" {
		t.Errorf("Type = %q, want %q", frame.Type, "vad_status")
	}
	if frame.Data.IsSpeech {
		t.Error("IsSpeech = true, want false")
	}
	if !frame.Data.SpeechEnded {
		t.Error("SpeechEnded = false, want true")
	}
}

func TestParseControl(t *testing.T) {
	msg, err := ParseControl([]byte(`{"type":"interrupt"}`))
	if err != nil {
		t.Fatalf("ParseControl: %v", err)
	}
	if msg.Type != "interrupt" {
		t.Errorf("Type = %q, want %q", msg.Type, "interrupt")
	}

	if _, err := ParseControl([]byte("not json")); err == nil {
		t.Error("ParseControl accepted invalid JSON")
	} else if !strings.Contains(err.Error(), "parse control") {
		t.Errorf("error = %q, want parse control context", err)
	}
}
