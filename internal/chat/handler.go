package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/abroad-advisor/internal/annotate"
	"github.com/ashureev/abroad-advisor/internal/backend"
	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/identity"
	"github.com/ashureev/abroad-advisor/internal/intent"
	"github.com/ashureev/abroad-advisor/internal/metrics"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

const (
	defaultMaxMessageBytes = 64 << 10
	defaultWriteTimeout    = 10 * time.Second
	defaultInitTimeout     = 5 * time.Second

	// maxPendingFrames bounds frames read while a message is still being
	// processed.
	maxPendingFrames = 8
)

// Dispatcher runs one request against the backend for an intent.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent domain.Intent, req backend.Request) (domain.Transcript, error)
	Budget(intent domain.Intent) time.Duration
}

// Options tunes the chat handler.
type Options struct {
	AllowedOrigins  []string
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	InitTimeout     time.Duration
	IsDev           bool
}

// Handler serves the chat WebSocket.
type Handler struct {
	dispatcher Dispatcher
	init       SessionInitializer
	sm         *SessionManager
	limiter    *RateLimiter
	convLog    ConversationLogger
	opts       Options
	logger     *slog.Logger
}

// NewHandler creates a chat handler. convLog and logger may be nil.
func NewHandler(d Dispatcher, init SessionInitializer, sm *SessionManager, limiter *RateLimiter, convLog ConversationLogger, opts Options, logger *slog.Logger) *Handler {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	return &Handler{
		dispatcher: d,
		init:       init,
		sm:         sm,
		limiter:    limiter,
		convLog:    convLog,
		opts:       opts,
		logger:     logger,
	}
}

// ServeHTTP upgrades the request and runs the chat loop until the peer
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	log := h.logger.With("user_id", userID, "session_id", sessionID)
	log.Info("Chat connection request", "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.opts.MaxMessageBytes)

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{
		h:         h,
		ws:        ws,
		userID:    userID,
		sessionID: sessionID,
		profile:   h.initSession(ctx, userID, sessionID, log),
		log:       log,
	}

	frames := make(chan []byte, maxPendingFrames)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(frames)
		// Losing the peer cancels any in-flight dispatch.
		defer cancel()
		c.readLoop(ctx, frames)
	}()

	for frame := range frames {
		if ctx.Err() != nil {
			break
		}
		if !c.handle(ctx, frame) {
			break
		}
	}
	// Close before cancelling: a cancelled read makes the library close
	// with its own status code.
	if c.panicked {
		_ = ws.Close(websocket.StatusInternalError, "internal error")
	}
	cancel()
	wg.Wait()

	log.Info("Chat session ended")
}

func (h *Handler) initSession(ctx context.Context, userID, sessionID string, log *slog.Logger) *domain.Profile {
	if h.init == nil {
		return &domain.Profile{UserID: userID}
	}
	initCtx, cancel := context.WithTimeout(ctx, h.opts.InitTimeout)
	defer cancel()

	profile, err := h.init.InitSession(initCtx, userID, sessionID)
	if err != nil || profile == nil {
		log.Warn("Session initialization failed, using defaults", "error", err)
		return &domain.Profile{UserID: userID}
	}
	return profile
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigins)
	return false
}

// connection is the state of one open chat socket. Only the loop goroutine
// writes to ws.
type connection struct {
	h         *Handler
	ws        *websocket.Conn
	userID    string
	sessionID string
	profile   *domain.Profile
	log       *slog.Logger
	panicked  bool
}

// readLoop keeps reading while the loop is busy so a disconnect is seen,
// and cancels, mid-dispatch. A peer that outruns the loop by more than
// maxPendingFrames is closed.
func (c *connection) readLoop(ctx context.Context, frames chan<- []byte) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				c.log.Debug("WebSocket closed", "status", websocket.CloseStatus(err))
			} else {
				c.log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		select {
		case frames <- data:
		default:
			c.log.Warn("Too many pending chat messages, closing connection", "pending", maxPendingFrames)
			_ = c.ws.Close(websocket.StatusPolicyViolation, "too many pending messages")
			return
		}
	}
}

func (c *connection) send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.h.opts.WriteTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Debug("WebSocket write error", "error", err, "type", ev.Type)
		return err
	}
	return nil
}

func (c *connection) progress(step, message string, details map[string]any) error {
	return c.send(progressEvent(step, message, details))
}

// handle processes one inbound frame and reports whether the connection
// should stay open.
func (c *connection) handle(ctx context.Context, raw []byte) (keepOpen bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic in chat handler", "panic", r, "stack", string(debug.Stack()))
			metrics.MessagesTotal.WithLabelValues("panic").Inc()
			_ = c.send(errorEvent(http.StatusInternalServerError,
				"An unexpected error occurred. Please reconnect and try again.",
				fmt.Sprint(r)))
			c.panicked = true
			keepOpen = false
		}
	}()

	var in inboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return c.reject("Invalid message format.", "invalid JSON: "+err.Error())
	}

	switch in.Type {
	case TypePing:
		return c.send(Event{Type: TypePong}) == nil
	case TypeUserMessage:
	default:
		return c.reject("Unsupported message type.", fmt.Sprintf("unsupported message type %q", in.Type))
	}

	var data userMessageData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return c.reject("Invalid message format.", "invalid data: "+err.Error())
		}
	}
	if strings.TrimSpace(data.Message) == "" {
		return c.reject("Message cannot be empty.", "empty message")
	}

	return c.process(ctx, data.Message, data.FileInfo)
}

func (c *connection) reject(message, internal string) bool {
	metrics.MessagesTotal.WithLabelValues("rejected").Inc()
	c.log.Info("Chat message rejected", "reason", internal)
	return c.send(errorEvent(http.StatusBadRequest, message, internal)) == nil
}

// process runs one accepted user message to its single terminal event.
// message reaches the backend as sent; only routing sees it trimmed.
//
//nolint:gocyclo // The progress sequence is kept in one place to make its order obvious.
func (c *connection) process(ctx context.Context, message string, fileInfo map[string]any) bool {
	reqID := uuid.NewString()
	log := c.log.With("request_id", reqID)

	c.h.convLog.Log(ConversationLogEvent{
		UserID:     c.userID,
		SessionID:  c.sessionID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: message,
		Meta: map[string]any{
			"request_id": reqID,
			"has_file":   fileInfo != nil,
		},
	})

	if err := c.progress(StepReceived, "Message received", nil); err != nil {
		return false
	}

	if c.h.limiter != nil && !c.h.limiter.Allow(c.userID) {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		log.Warn("Chat rate limit exceeded")
		return c.send(errorEvent(http.StatusTooManyRequests,
			"You are sending messages too quickly. Please wait a moment and try again.",
			"rate limit exceeded")) == nil
	}

	if err := c.progress(StepRoutingStart, "Analyzing your request", nil); err != nil {
		return false
	}

	text := strings.TrimSpace(message)
	team := intent.Classify(text)
	school, info := intent.Score(text)
	log = log.With("intent", team)
	log.Info("Chat message routed", "school_score", school, "info_score", info, "message_length", len(text))

	if err := c.progress(StepRoutedToTeam, fmt.Sprintf("Routing to the %s team", team.Label()), map[string]any{
		"team": team,
	}); err != nil {
		return false
	}
	if err := c.progress(StepToolsStart, fmt.Sprintf("Working on your %s", team.Label()), map[string]any{
		"team":           team,
		"budget_seconds": c.h.dispatcher.Budget(team).Seconds(),
	}); err != nil {
		return false
	}

	t, dispatchErr := c.h.dispatcher.Dispatch(ctx, team, backend.Request{
		Message:   message,
		UserID:    c.userID,
		SessionID: c.sessionID,
		RequestID: reqID,
		Profile:   c.profile,
		FileInfo:  fileInfo,
	})
	if ctx.Err() != nil {
		log.Info("Connection closed during dispatch")
		return false
	}

	outcome := "success"
	if dispatchErr != nil {
		outcome = "fallback"
	}
	if err := c.progress(StepToolsDone, "Preparing the response", map[string]any{
		"team":    team,
		"turns":   len(t),
		"outcome": outcome,
	}); err != nil {
		return false
	}

	var env ResultEnvelope
	if dispatchErr != nil {
		env = fallbackEnvelope(team, dispatchErr)
	} else {
		res := transcript.Extract(t)
		metrics.ExtractionTotal.WithLabelValues(string(res.Via)).Inc()
		ann := annotate.Annotate(team, res, t)
		env = buildEnvelope(team, res, ann, t)
		log.Debug("Transcript extracted", "via", res.Via, "annotated", !ann.IsZero())
	}

	if err := c.send(resultEvent(env)); err != nil {
		return false
	}
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()

	c.h.convLog.Log(ConversationLogEvent{
		UserID:     c.userID,
		SessionID:  c.sessionID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: env.Message,
		Meta: map[string]any{
			"request_id":        reqID,
			"team_used":         env.Meta.TeamUsed,
			"interaction_count": env.Meta.InteractionCount,
		},
	})
	return true
}
