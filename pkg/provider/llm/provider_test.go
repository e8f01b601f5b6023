package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRequestWithDefaults(t *testing.T) {
	r := Request{}.WithDefaults()
	if r.Temperature != DefaultTemperature {
		t.Errorf("Temperature: want %v, got %v", DefaultTemperature, r.Temperature)
	}
	if r.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens: want %d, got %d", DefaultMaxTokens, r.MaxTokens)
	}
}

func TestRequestWithDefaults_ExplicitValues(t *testing.T) {
	r := Request{Temperature: 0.1, MaxTokens: 50}.WithDefaults()
	if r.Temperature != 0.1 {
		t.Errorf("Temperature: want 0.1, got %v", r.Temperature)
	}
	if r.MaxTokens != 50 {
		t.Errorf("MaxTokens: want 50, got %d", r.MaxTokens)
	}
}

func TestStream_CleanCompletion(t *testing.T) {
	s := NewStream(4)
	go func() {
		defer s.Close()
		for _, tok := range []string{"Hello", " there", "."} {
			if !s.Send(context.Background(), tok) {
				return
			}
		}
	}()

	var got strings.Builder
	for tok := range s.Tokens() {
		got.WriteString(tok)
	}
	if got.String() != "Hello there." {
		t.Errorf("tokens: got %q", got.String())
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err after clean completion: %v", err)
	}
}

func TestStream_MidStreamFailure(t *testing.T) {
	wantErr := errors.New("backend went away")
	s := NewStream(4)
	go func() {
		defer s.Close()
		s.Send(context.Background(), "partial")
		s.Fail(wantErr)
	}()

	var tokens []string
	for tok := range s.Tokens() {
		tokens = append(tokens, tok)
	}
	if len(tokens) != 1 || tokens[0] != "partial" {
		t.Errorf("tokens: got %v", tokens)
	}
	if !errors.Is(s.Err(), wantErr) {
		t.Errorf("Err: want %v, got %v", wantErr, s.Err())
	}
}

func TestStream_SendStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStream(0) // unbuffered: Send must block, then observe cancellation
	if s.Send(ctx, "tok") {
		t.Error("Send should return false when ctx is done and nobody receives")
	}
}

func TestStream_CloseIdempotent(t *testing.T) {
	s := NewStream(1)
	s.Close()
	s.Close() // must not panic
	if _, ok := <-s.Tokens(); ok {
		t.Error("expected closed channel")
	}
}

func TestSearchSystemPrompt(t *testing.T) {
	got := SearchSystemPrompt("[1] Mars Update\nSource: https://www.nytimes.com/x\nsnippet\n\n",
		"Based on sources including Nytimes and Space")

	if !strings.HasPrefix(got, VoiceSystemPrompt) {
		t.Error("prompt must start with the base voice instruction")
	}
	if !strings.Contains(got, "Mars Update") {
		t.Error("prompt must embed the search context")
	}
	if !strings.Contains(got, "Based on sources including Nytimes and Space") {
		t.Error("prompt must embed the citation phrase")
	}
}

func TestSearchSystemPrompt_NoContext(t *testing.T) {
	if got := SearchSystemPrompt("", ""); got != VoiceSystemPrompt {
		t.Errorf("empty context should yield the bare voice prompt, got %q", got)
	}
}
