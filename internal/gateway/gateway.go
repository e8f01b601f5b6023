// Package gateway accepts WebSocket voice connections and bridges them to
// per-connection turn orchestrators.
//
// One connection carries one session: binary frames are caller audio, text
// frames are JSON control messages, and everything outbound goes through a
// single writer goroutine so frames never interleave on the wire.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxwire/voxwire/internal/auth"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/orchestrator"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/pkg/types"
)

const (
	// minAudioBytes filters keepalive pings and codec stubs out of the
	// binary stream; anything at or below this size carries no audio.
	minAudioBytes = 100

	// DefaultMaxConcurrent bounds simultaneous voice connections.
	DefaultMaxConcurrent = 100

	// outboundBuffer is the writer queue depth per connection.
	outboundBuffer = 64

	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 5 * time.Second

	// closeTimeout bounds the orchestrator flush after a disconnect.
	closeTimeout = 5 * time.Second
)

// Handler upgrades voice connections on GET /voice/{session_id}.
type Handler struct {
	sessions *session.Store
	issuer   *auth.Issuer

	// base is the orchestrator wiring shared by every connection. The
	// per-connection fields (SessionID, UserID, Send, History) are filled at
	// accept time.
	base orchestrator.Config

	maxConcurrent  int
	metrics        *observe.Metrics
	originPatterns []string

	mu     sync.Mutex
	active int
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxConcurrent caps simultaneous connections.
func WithMaxConcurrent(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxConcurrent = n
		}
	}
}

// WithMetrics wires the live-connection gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithOriginPatterns sets the allowed WebSocket origins. Empty means
// same-origin only; "*" allows everything.
func WithOriginPatterns(patterns []string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// New creates a Handler. base carries the provider managers, cache, session
// store, and the rest of the orchestrator wiring shared across connections.
func New(sessions *session.Store, issuer *auth.Issuer, base orchestrator.Config, opts ...Option) *Handler {
	h := &Handler{
		sessions:      sessions,
		issuer:        issuer,
		base:          base,
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ActiveConnections returns the number of live voice connections.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// acquireSlot reserves a connection slot, reporting false when full.
func (h *Handler) acquireSlot() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active >= h.maxConcurrent {
		return false
	}
	h.active++
	return true
}

func (h *Handler) releaseSlot() {
	h.mu.Lock()
	h.active--
	h.mu.Unlock()
}

// ServeHTTP handles GET /voice/{session_id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sessionID, "err", err)
		return
	}

	if !h.acquireSlot() {
		slog.Warn("connection rejected, session limit reached",
			"session_id", sessionID, "limit", h.maxConcurrent)
		conn.Close(websocket.StatusPolicyViolation, "session limit reached")
		return
	}
	defer h.releaseSlot()

	h.metrics.SessionOpened(r.Context())
	defer h.metrics.SessionClosed(context.Background())

	h.serve(r.Context(), conn, sessionID, r.URL.Query().Get("token"))
}

// serve runs one connection to completion.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sessionID, token string) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	userID, history, err := h.resolveSession(ctx, sessionID, token)
	if err != nil {
		slog.Error("session resolution failed", "session_id", sessionID, "err", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	log := slog.With("session_id", sessionID, "user_id", userID)
	log.Info("voice connection opened", "history", len(history))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One writer goroutine owns the wire; Send enqueues in call order.
	out := make(chan []byte, outboundBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for payload := range out {
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancelWrite()
			if err != nil {
				log.Debug("outbound write failed", "err", err)
				cancel()
				return
			}
		}
	}()

	send := func(payload []byte) error {
		select {
		case out <- payload:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cfg := h.base
	cfg.SessionID = sessionID
	cfg.UserID = userID
	cfg.Send = send
	cfg.History = history
	orch := orchestrator.New(cfg)

	if _, err := h.sessions.UpdateSession(ctx, sessionID, session.Update{
		State: types.StateListening,
	}); err != nil {
		log.Warn("session state update failed", "err", err)
	}

	h.readLoop(ctx, conn, orch, log)

	// Disconnect: let the in-flight turn wind down and park the session.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), closeTimeout)
	orch.Close(flushCtx)
	cancelFlush()

	cancel()
	close(out)
	<-writerDone
	log.Info("voice connection closed")
}

// readLoop demuxes inbound frames until the client disconnects: binary is
// caller audio, text is control JSON.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, orch *orchestrator.Orchestrator, log *slog.Logger) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			log.Debug("read loop ended", "err", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if len(data) <= minAudioBytes {
				log.Debug("dropping undersized binary frame", "bytes", len(data))
				continue
			}
			orch.HandleAudio(ctx, data)
		case websocket.MessageText:
			orch.HandleControl(data)
		}
	}
}

// resolveSession loads an existing session or creates one for the token's
// identity. Reconnecting to a live session adopts its user and history.
func (h *Handler) resolveSession(ctx context.Context, sessionID, token string) (userID string, history []types.Message, err error) {
	if h.issuer != nil {
		userID = h.issuer.Identity(token)
	} else {
		userID = auth.GuestUserID()
	}

	data, err := h.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		return data.UserID, data.ConversationHistory, nil
	case errors.Is(err, session.ErrNotFound):
		if _, err := h.sessions.Create(ctx, userID, sessionID, nil); err != nil {
			return "", nil, err
		}
		return userID, nil, nil
	default:
		return "", nil, err
	}
}
