package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/voxwire/voxwire/internal/cache"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/provider/search"
	"github.com/voxwire/voxwire/pkg/provider/stt"
	"github.com/voxwire/voxwire/pkg/provider/tts"
	"github.com/voxwire/voxwire/pkg/types"
)

// sentenceBuffer is the channel depth between the token loop and the TTS
// sender; synthesis overlaps token streaming without unbounded queueing.
const sentenceBuffer = 4

// runTurn executes the full pipeline for one segmented turn.
func (o *Orchestrator) runTurn(ctx context.Context, fragments [][]byte) {
	correlationID := newCorrelationID()
	log := slog.With("session_id", o.sessionID, "correlation_id", correlationID)
	turnStart := time.Now()

	o.colStartRequest(correlationID)
	o.setState(types.StateThinking)

	// Stage 1: speech to text.
	transcript, err := o.transcribe(ctx, correlationID, fragments)
	if err != nil {
		log.Error("transcription failed", "err", err)
		o.colEndRequest(correlationID, false, "stt: "+err.Error(), false)
		o.setState(types.StateListening)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if len([]rune(transcript)) <= 1 {
		// Breath noise or an empty clip. Not a failure, not a turn.
		log.Debug("discarding empty transcript", "fragments", len(fragments))
		o.colDiscard(correlationID)
		o.setState(types.StateListening)
		return
	}
	log.Info("turn transcript", "text", transcript)

	now := time.Now()
	o.sendFrame(TranscriptFrame(SpeakerUser, transcript, now, true))
	userMsg := types.Message{Role: types.RoleUser, Content: transcript}
	o.appendHistory(ctx, userMsg)
	o.saveToMemory(ctx, memory.SaveMessageParams{
		Role:    types.RoleUser,
		Content: transcript,
	})

	// Stage 2: semantic cache probe. A hit skips search and the LLM
	// entirely.
	if o.cfg.Cache != nil && !o.interrupted.Load() {
		hit, err := o.cfg.Cache.Get(ctx, transcript)
		if err != nil {
			log.Warn("cache probe failed", "err", err)
		}
		o.cfg.Metrics.RecordCacheLookup(ctx, hit != nil)
		if hit != nil {
			log.Info("cache hit",
				"similarity", hit.Similarity, "original_query", hit.OriginalQuery)
			o.finishFromCache(ctx, correlationID, turnStart, hit)
			return
		}
	}

	// Stage 3: search decision + web search.
	searchContext, citation, searchQuery, usedSearch := o.maybeSearch(ctx, correlationID, transcript)

	// Stage 4: streaming LLM completion with sentence-chunked synthesis.
	req := llm.Request{
		Messages:     o.History(),
		SystemPrompt: llm.VoiceSystemPrompt,
	}
	if searchContext != "" {
		req.SystemPrompt = llm.SearchSystemPrompt(searchContext, citation)
	}

	llmStart := time.Now()
	o.colStartStage(correlationID, observe.StageLLM)
	stream, err := resilience.Execute(ctx, o.cfg.LLM,
		func(ctx context.Context, p llm.Provider) (*llm.Stream, error) {
			return p.StreamComplete(ctx, req)
		})
	if err != nil {
		o.colEndStage(correlationID, observe.StageLLM)
		log.Error("llm failed", "err", err)
		o.sendFrame(ErrorFrame("I'm having trouble responding right now. Please try again."))
		o.colEndRequest(correlationID, false, "llm: "+err.Error(), usedSearch)
		o.setState(types.StateListening)
		return
	}

	response, tokens, interrupted, ttsOK := o.speakStream(ctx, correlationID, stream)
	o.colEndStage(correlationID, observe.StageLLM)
	o.cfg.Metrics.RecordStage(ctx, observe.StageLLM, time.Since(llmStart).Seconds())

	if streamErr := stream.Err(); streamErr != nil {
		if tokens == 0 {
			log.Error("llm stream failed before any tokens", "err", streamErr)
			o.sendFrame(ErrorFrame("I'm having trouble responding right now. Please try again."))
			o.colEndRequest(correlationID, false, "llm: "+streamErr.Error(), usedSearch)
			o.setState(types.StateListening)
			return
		}
		// A partial answer already went out as audio; treat it as the
		// response.
		log.Warn("llm stream failed mid-response, keeping partial",
			"tokens", tokens, "err", streamErr)
	}

	if interrupted {
		log.Info("turn interrupted", "tokens", tokens)
		o.cfg.Metrics.RecordInterrupted(ctx)
		o.colEndRequest(correlationID, false, "interrupted", usedSearch)
		o.setState(types.StateListening)
		return
	}
	if !ttsOK {
		o.colEndRequest(correlationID, false, "tts: all providers failed", usedSearch)
		o.setState(types.StateListening)
		return
	}

	response = strings.TrimSpace(response)
	if response == "" {
		log.Warn("llm produced an empty response")
		o.colEndRequest(correlationID, false, "empty response", usedSearch)
		o.setState(types.StateListening)
		return
	}

	// Stage 5: commit.
	o.sendFrame(TranscriptFrame(SpeakerAssistant, response, time.Now(), true))
	o.appendHistory(ctx, types.Message{Role: types.RoleAssistant, Content: response})

	if o.cfg.Cache != nil && !usedSearch && len(response) > minCacheableChars {
		if err := o.cfg.Cache.Set(ctx, transcript, response, 0, nil); err != nil {
			log.Warn("response caching failed", "err", err)
		}
	}

	latencyMS := time.Since(turnStart).Seconds() * 1000
	o.saveToMemory(ctx, memory.SaveMessageParams{
		Role:        types.RoleAssistant,
		Content:     response,
		UsedSearch:  usedSearch,
		SearchQuery: searchQuery,
		LatencyMS:   latencyMS,
	})

	o.colEndRequest(correlationID, true, "", usedSearch)
	o.cfg.Metrics.RecordStage(ctx, observe.StageTotal, time.Since(turnStart).Seconds())
	o.setState(types.StateListening)
	log.Info("turn complete",
		"latency_ms", int(latencyMS), "used_search", usedSearch, "chars", len(response))
}

// transcribe runs the STT stage. With a decoder the fragments are assembled
// into one clip; without one each fragment is transcribed separately and the
// pieces joined with single spaces.
func (o *Orchestrator) transcribe(ctx context.Context, correlationID string, fragments [][]byte) (string, error) {
	start := time.Now()
	o.colStartStage(correlationID, observe.StageSTT)
	defer func() {
		o.colEndStage(correlationID, observe.StageSTT)
		o.cfg.Metrics.RecordStage(ctx, observe.StageSTT, time.Since(start).Seconds())
	}()

	run := func(clip []byte) (string, error) {
		return resilience.Execute(ctx, o.cfg.STT,
			func(ctx context.Context, p stt.Provider) (string, error) {
				return p.Transcribe(ctx, clip)
			})
	}

	clip, err := o.assemble(fragments)
	if err == nil {
		return run(clip)
	}
	if !errors.Is(err, audio.ErrNoDecoder) {
		return "", err
	}

	// Fallback: per-fragment transcription.
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		text, err := run(fragment)
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (o *Orchestrator) assemble(fragments [][]byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reasm.Assemble(fragments)
}

// finishFromCache serves a cached response: one synthesis, one audio frame.
func (o *Orchestrator) finishFromCache(ctx context.Context, correlationID string, turnStart time.Time, hit *cache.Hit) {
	log := slog.With("session_id", o.sessionID, "correlation_id", correlationID)

	clip, ok := o.synthesize(ctx, correlationID, hit.Response)
	if !ok {
		o.colEndRequest(correlationID, false, "tts: all providers failed", false)
		o.setState(types.StateListening)
		return
	}
	if o.interrupted.Load() {
		o.cfg.Metrics.RecordInterrupted(ctx)
		o.colEndRequest(correlationID, false, "interrupted", false)
		o.setState(types.StateListening)
		return
	}

	o.setState(types.StateSpeaking)
	o.sendFrame(AudioFrame(clip))
	o.sendFrame(TranscriptFrame(SpeakerAssistant, hit.Response, time.Now(), true))
	o.appendHistory(ctx, types.Message{Role: types.RoleAssistant, Content: hit.Response})
	o.saveToMemory(ctx, memory.SaveMessageParams{
		Role:      types.RoleAssistant,
		Content:   hit.Response,
		LatencyMS: time.Since(turnStart).Seconds() * 1000,
	})

	o.colEndRequest(correlationID, true, "", false)
	o.cfg.Metrics.RecordStage(ctx, observe.StageTotal, time.Since(turnStart).Seconds())
	o.setState(types.StateListening)
	log.Info("turn served from cache", "similarity", hit.Similarity)
}

// maybeSearch runs the search-intent decision and, when positive, the web
// search. Search failures degrade to answering from the model's own
// knowledge.
func (o *Orchestrator) maybeSearch(ctx context.Context, correlationID, transcript string) (searchContext, citation, query string, usedSearch bool) {
	if o.cfg.Detector == nil || o.cfg.Search == nil {
		return "", "", "", false
	}
	log := slog.With("session_id", o.sessionID, "correlation_id", correlationID)

	start := time.Now()
	o.colStartStage(correlationID, observe.StageSearch)
	defer func() {
		o.colEndStage(correlationID, observe.StageSearch)
		o.cfg.Metrics.RecordStage(ctx, observe.StageSearch, time.Since(start).Seconds())
	}()

	dec := o.cfg.Detector.Detect(ctx, transcript)
	if !dec.NeedsSearch {
		return "", "", "", false
	}

	results, err := resilience.Execute(ctx, o.cfg.Search,
		func(ctx context.Context, p search.Provider) ([]types.SearchResult, error) {
			return p.Search(ctx, dec.Query, maxSearchResults)
		})
	if err != nil {
		log.Warn("web search failed, answering without it", "err", err)
		return "", "", "", false
	}
	if len(results) == 0 {
		return "", "", "", false
	}
	return search.FormatForLLM(results), search.FormatCitation(results), dec.Query, true
}

// speakStream consumes LLM tokens, cuts them into sentences, and feeds a
// TTS sender goroutine so synthesis overlaps generation. It returns the full
// response text, the token count, whether the turn was interrupted, and
// whether synthesis stayed healthy.
func (o *Orchestrator) speakStream(ctx context.Context, correlationID string, stream *llm.Stream) (response string, tokens int, interrupted, ttsOK bool) {
	sentences := make(chan string, sentenceBuffer)
	ttsDone := make(chan bool, 1)
	go func() {
		ttsDone <- o.sendSentences(ctx, correlationID, sentences)
	}()

	var full, pending strings.Builder

loop:
	for {
		select {
		case <-o.interruptCh:
			interrupted = true
			break loop
		case tok, ok := <-stream.Tokens():
			if !ok {
				break loop
			}
			if o.interrupted.Load() {
				interrupted = true
				break loop
			}
			tokens++
			full.WriteString(tok)
			pending.WriteString(tok)
			if strings.ContainsAny(tok, ".!?\n") {
				if s := strings.TrimSpace(pending.String()); len(s) > minSentenceChars {
					sentences <- s
					pending.Reset()
				}
			}
		}
	}

	if interrupted {
		// Release the producer.
		go func() {
			for range stream.Tokens() {
			}
		}()
	} else if s := strings.TrimSpace(pending.String()); s != "" {
		sentences <- s
	}

	close(sentences)
	ttsOK = <-ttsDone
	return full.String(), tokens, interrupted, ttsOK
}

// sendSentences synthesizes sentences in arrival order and streams the audio
// frames out. The first successful dispatch flips the session to speaking.
// Synthesis exhaustion reports failure once and drains the rest.
func (o *Orchestrator) sendSentences(ctx context.Context, correlationID string, sentences <-chan string) bool {
	log := slog.With("session_id", o.sessionID, "correlation_id", correlationID)
	ok := true
	first := true

	for sentence := range sentences {
		if !ok || o.interrupted.Load() {
			continue
		}
		clip, synthOK := o.synthesize(ctx, correlationID, sentence)
		if !synthOK {
			log.Error("sentence synthesis failed, muting rest of turn")
			o.sendFrame(ErrorFrame("Speech synthesis is unavailable right now."))
			ok = false
			continue
		}
		if o.interrupted.Load() {
			continue
		}
		if first {
			o.setState(types.StateSpeaking)
			first = false
		}
		o.sendFrame(AudioFrame(clip))
	}
	return ok
}

// synthesize runs one TTS call through the provider manager, timing it as
// (part of) the turn's tts stage.
func (o *Orchestrator) synthesize(ctx context.Context, correlationID, text string) ([]byte, bool) {
	start := time.Now()
	o.colStartStage(correlationID, observe.StageTTS)
	clip, err := resilience.Execute(ctx, o.cfg.TTS,
		func(ctx context.Context, p tts.Provider) ([]byte, error) {
			return p.Synthesize(ctx, text)
		})
	o.colEndStage(correlationID, observe.StageTTS)
	o.cfg.Metrics.RecordStage(ctx, observe.StageTTS, time.Since(start).Seconds())
	if err != nil {
		slog.Error("tts failed",
			"session_id", o.sessionID, "correlation_id", correlationID, "err", err)
		return nil, false
	}
	return clip, true
}

// Collector wrappers; the collector is optional.

func (o *Orchestrator) colStartRequest(correlationID string) {
	if o.cfg.Collector != nil {
		o.cfg.Collector.StartRequest(correlationID, o.sessionID, o.userID)
	}
}

func (o *Orchestrator) colStartStage(correlationID, stage string) {
	if o.cfg.Collector != nil {
		o.cfg.Collector.StartStage(correlationID, stage)
	}
}

func (o *Orchestrator) colEndStage(correlationID, stage string) {
	if o.cfg.Collector != nil {
		o.cfg.Collector.EndStage(correlationID, stage)
	}
}

func (o *Orchestrator) colEndRequest(correlationID string, success bool, errMsg string, usedSearch bool) {
	if o.cfg.Collector != nil {
		o.cfg.Collector.EndRequest(correlationID, success, errMsg, usedSearch)
	}
}

func (o *Orchestrator) colDiscard(correlationID string) {
	if o.cfg.Collector != nil {
		o.cfg.Collector.Discard(correlationID)
	}
}
