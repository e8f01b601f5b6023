// Package orchestrator drives the per-connection voice turn state machine:
// audio fragments in, segmented turns through STT → (cache | search) → LLM →
// sentence-chunked TTS, frames back out.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire/voxwire/internal/cache"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/internal/searchintent"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/types"
)

const (
	// DefaultSilenceDuration is how long a silence run must last after
	// speech before the turn ends.
	DefaultSilenceDuration = 2500 * time.Millisecond

	// DefaultSilenceThreshold is the fragment RMS above which a fragment
	// counts as speech.
	DefaultSilenceThreshold = 0.02

	// MinSpeechFragments is how many speech fragments a turn needs before
	// silence can end it.
	MinSpeechFragments = 1

	// MaxFragmentsFallback ends a turn after this many fragments when no
	// decoder is available to run energy VAD.
	MaxFragmentsFallback = 6

	// BargeInBytes is the minimum fragment size that interrupts the
	// assistant while it is speaking. Smaller fragments while speaking are
	// echo and get dropped.
	BargeInBytes = 500

	// minSentenceChars is the smallest trimmed sentence worth synthesizing.
	minSentenceChars = 10

	// minCacheableChars is the smallest response worth caching.
	minCacheableChars = 20

	// maxSearchResults caps web search results per turn.
	maxSearchResults = 3

	// maxHistoryMessages bounds the conversation window sent to the LLM.
	maxHistoryMessages = 20
)

// Config wires one Orchestrator. SessionID, Send, STT, LLM, TTS and Sessions
// are required; everything else degrades gracefully when nil.
type Config struct {
	SessionID string
	UserID    string
	Send      SendFunc

	STT    *resilience.STTManager
	LLM    *resilience.LLMManager
	TTS    *resilience.TTSManager
	Search *resilience.SearchManager

	Cache    *cache.SemanticCache
	Detector *searchintent.Detector
	Sessions *session.Store
	Memory   memory.Store

	Collector *observe.Collector
	Metrics   *observe.Metrics

	// Decoder decodes compressed fragments for reassembly and VAD. Nil
	// activates fallback segmentation and per-fragment transcription.
	Decoder audio.Decoder

	// History seeds the conversation window, typically from a resumed
	// session's stored history.
	History []types.Message

	SampleRate       int
	SilenceDuration  time.Duration
	SilenceThreshold float64
}

// Orchestrator is the turn state machine for one connection.
//
// HandleAudio and HandleControl are called from the gateway's read loop; the
// turn pipeline runs in its own goroutine so barge-in can be observed
// mid-turn. Segmentation state is guarded by mu.
type Orchestrator struct {
	cfg       Config
	sessionID string
	userID    string
	send      SendFunc

	analyzer *audio.Analyzer

	mu           sync.Mutex
	state        types.SessionState
	reasm        *audio.Reassembler
	speechSeen   int
	silenceSince time.Time
	silenceTimer *time.Timer
	turnRunning  bool
	history      []types.Message
	closed       bool

	interrupted atomic.Bool
	interruptCh chan struct{}

	wg sync.WaitGroup
}

// New creates an Orchestrator in the listening state.
func New(cfg Config) *Orchestrator {
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = DefaultSilenceDuration
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.STTFormat.SampleRate
	}

	analyzerOpts := []audio.AnalyzerOption{}
	if cfg.Decoder != nil {
		analyzerOpts = append(analyzerOpts, audio.WithDecoder(cfg.Decoder))
	}

	o := &Orchestrator{
		cfg:         cfg,
		sessionID:   cfg.SessionID,
		userID:      cfg.UserID,
		send:        cfg.Send,
		analyzer:    audio.NewAnalyzer(cfg.SampleRate, analyzerOpts...),
		state:       types.StateListening,
		reasm:       audio.NewReassembler(cfg.Decoder),
		history:     append([]types.Message(nil), cfg.History...),
		interruptCh: make(chan struct{}, 1),
	}
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() types.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns a copy of the conversation window.
func (o *Orchestrator) History() []types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Message(nil), o.history...)
}

// HandleAudio feeds one binary fragment from the client into segmentation.
// Called from the gateway read loop.
func (o *Orchestrator) HandleAudio(ctx context.Context, fragment []byte) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}

	if o.state == types.StateSpeaking {
		if len(fragment) <= BargeInBytes {
			o.mu.Unlock()
			slog.Debug("dropping small fragment while speaking",
				"session_id", o.sessionID, "bytes", len(fragment))
			return
		}
		o.bargeInLocked()
		// The triggering fragment becomes the first of the next turn.
	}

	metrics := o.analyzer.Analyze(fragment)
	speech := metrics.RMS > o.cfg.SilenceThreshold

	if !o.reasm.Add(fragment) {
		o.mu.Unlock()
		return
	}

	o.sendLocked(AudioMetricsFrame(metrics))

	endOfTurn := false
	speechEnded := false
	now := time.Now()

	switch {
	case len(fragment) >= audio.LargeFragmentBytes:
		// Push-to-talk style whole-utterance blob.
		endOfTurn = true
		speechEnded = true
	case !o.reasm.HasDecoder():
		if o.reasm.Len() >= MaxFragmentsFallback {
			endOfTurn = true
			speechEnded = true
		}
	case speech:
		o.speechSeen++
		o.silenceSince = time.Time{}
		o.stopSilenceTimerLocked()
	default:
		if o.speechSeen >= MinSpeechFragments {
			if o.silenceSince.IsZero() {
				o.silenceSince = now
				o.armSilenceTimerLocked()
			} else if now.Sub(o.silenceSince) >= o.cfg.SilenceDuration {
				endOfTurn = true
				speechEnded = true
			}
		}
	}

	o.sendLocked(VADStatusFrame(speech, speechEnded))

	if endOfTurn {
		o.startTurnLocked(ctx)
	}
	o.mu.Unlock()
}

// HandleControl processes one inbound JSON control frame.
func (o *Orchestrator) HandleControl(payload []byte) {
	msg, err := ParseControl(payload)
	if err != nil {
		slog.Warn("unparseable control frame", "session_id", o.sessionID, "err", err)
		return
	}
	switch msg.Type {
	case "interrupt", "cancel_audio":
		o.Interrupt(msg.Type)
	default:
		slog.Warn("unknown control message type",
			"session_id", o.sessionID, "type", msg.Type)
	}
}

// Interrupt cancels any in-flight response. It acknowledges even when
// nothing is in flight so clients can treat it as fire-and-forget.
func (o *Orchestrator) Interrupt(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == types.StateThinking || o.state == types.StateSpeaking {
		o.signalInterruptLocked()
		o.setStateLocked(types.StateListening)
	}
	o.sendLocked(InterruptAckFrame("interrupt acknowledged: " + reason))
	slog.Info("turn interrupted", "session_id", o.sessionID, "reason", reason)
}

// Close stops segmentation, waits for an in-flight turn, and parks the
// session in the idle state.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopSilenceTimerLocked()
	o.signalInterruptLocked()
	o.reasm.Reset()
	o.mu.Unlock()

	o.wg.Wait()

	if o.cfg.Sessions != nil {
		_, err := o.cfg.Sessions.UpdateSession(ctx, o.sessionID, session.Update{
			State: types.StateIdle,
		})
		if err != nil {
			slog.Warn("session idle flush failed",
				"session_id", o.sessionID, "err", err)
		}
	}
}

// bargeInLocked handles a speech fragment arriving mid-response.
func (o *Orchestrator) bargeInLocked() {
	o.signalInterruptLocked()
	o.setStateLocked(types.StateListening)
	o.sendLocked(InterruptAckFrame("barge-in: listening"))
	slog.Info("barge-in", "session_id", o.sessionID)
}

func (o *Orchestrator) signalInterruptLocked() {
	o.interrupted.Store(true)
	select {
	case o.interruptCh <- struct{}{}:
	default:
	}
}

// armSilenceTimerLocked schedules end-of-turn for when the silence window
// elapses without further speech, covering clients that stop sending frames
// entirely once the user goes quiet.
func (o *Orchestrator) armSilenceTimerLocked() {
	o.stopSilenceTimerLocked()
	o.silenceTimer = time.AfterFunc(o.cfg.SilenceDuration, o.onSilenceElapsed)
}

func (o *Orchestrator) stopSilenceTimerLocked() {
	if o.silenceTimer != nil {
		o.silenceTimer.Stop()
		o.silenceTimer = nil
	}
}

func (o *Orchestrator) onSilenceElapsed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.silenceSince.IsZero() || o.speechSeen < MinSpeechFragments {
		return
	}
	o.sendLocked(VADStatusFrame(false, true))
	o.startTurnLocked(context.Background())
}

// startTurnLocked hands the buffered fragments to a pipeline goroutine and
// resets segmentation for the next turn. Callers hold o.mu.
func (o *Orchestrator) startTurnLocked(ctx context.Context) {
	o.speechSeen = 0
	o.silenceSince = time.Time{}
	o.stopSilenceTimerLocked()

	if o.turnRunning {
		// A turn is already in flight; keep the fragments buffered so they
		// open the next turn.
		slog.Debug("turn already running, buffering fragments",
			"session_id", o.sessionID, "fragments", o.reasm.Len())
		return
	}

	fragments := o.reasm.Take()
	if len(fragments) == 0 {
		return
	}

	o.turnRunning = true
	o.interrupted.Store(false)
	select {
	case <-o.interruptCh:
	default:
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runTurn(ctx, fragments)
		o.mu.Lock()
		o.turnRunning = false
		o.mu.Unlock()
	}()
}

// setStateLocked transitions the state machine and notifies the client.
func (o *Orchestrator) setStateLocked(next types.SessionState) {
	if o.state == next {
		return
	}
	slog.Debug("state change",
		"session_id", o.sessionID, "from", o.state, "to", next)
	o.state = next
	o.sendLocked(StateFrame(next))
}

func (o *Orchestrator) setState(next types.SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStateLocked(next)
}

// sendLocked writes one frame, logging (not propagating) failures. A dead
// client surfaces through the gateway's read loop, not here.
func (o *Orchestrator) sendLocked(frame []byte) {
	if o.send == nil {
		return
	}
	if err := o.send(frame); err != nil {
		slog.Warn("client send failed", "session_id", o.sessionID, "err", err)
	}
}

func (o *Orchestrator) sendFrame(frame []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sendLocked(frame)
}

// appendHistory commits a message to the in-memory window and, best-effort,
// to the session store.
func (o *Orchestrator) appendHistory(ctx context.Context, msg types.Message) {
	o.mu.Lock()
	o.history = append(o.history, msg)
	if len(o.history) > maxHistoryMessages {
		o.history = o.history[len(o.history)-maxHistoryMessages:]
	}
	o.mu.Unlock()

	if o.cfg.Sessions == nil {
		return
	}
	_, err := o.cfg.Sessions.UpdateSession(ctx, o.sessionID, session.Update{
		AddMessage: &msg,
	})
	if err != nil {
		slog.Warn("session history write failed",
			"session_id", o.sessionID, "err", err)
	}
}

// saveToMemory persists one utterance to long-term memory, best-effort.
func (o *Orchestrator) saveToMemory(ctx context.Context, params memory.SaveMessageParams) {
	if o.cfg.Memory == nil {
		return
	}
	params.SessionID = o.sessionID
	params.UserID = o.userID
	if err := o.cfg.Memory.SaveMessage(ctx, params); err != nil {
		slog.Warn("long-term memory write failed",
			"session_id", o.sessionID, "err", err)
	}
}

// newCorrelationID mints a short per-turn id for metrics and logs.
func newCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
