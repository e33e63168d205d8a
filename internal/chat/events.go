// Package chat implements the per-connection chat loop over WebSocket:
// classify each user message, dispatch it to a backend, and emit one result
// built from the backend transcript.
package chat

import "encoding/json"

// Inbound message types.
const (
	TypeUserMessage = "user_message"
	TypePing        = "ping"
)

// Outbound event types.
const (
	TypeStatus = "status"
	TypeResult = "result"
	TypePong   = "pong"
)

// Progress steps, in the order they are sent for one message.
const (
	StepReceived     = "received"
	StepRoutingStart = "routing_start"
	StepRoutedToTeam = "routed_to_team"
	StepToolsStart   = "tools_start"
	StepToolsDone    = "tools_done"
)

const (
	statusThinking = "thinking"
	statusError    = "error"
	statusSuccess  = "success"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type userMessageData struct {
	Message  string         `json:"message"`
	FileInfo map[string]any `json:"file_info,omitempty"`
}

// Event is one outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatusData is the body of progress and error events.
type StatusData struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ResultEnvelope is the terminal success body for one user message.
type ResultEnvelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Meta    Meta           `json:"meta"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Meta describes how a result was produced.
type Meta struct {
	TeamUsed         string   `json:"team_used"`
	InteractionCount int      `json:"interaction_count"`
	Strategy         *string  `json:"strategy,omitempty"`
	Source           *string  `json:"source,omitempty"`
	RAGSimilarity    *float64 `json:"rag_similarity,omitempty"`
	ReferenceLinks   []string `json:"reference_links,omitempty"`
	ThinkingProcess  *string  `json:"thinking_process,omitempty"`
}

func progressEvent(step, message string, details map[string]any) Event {
	d := map[string]any{"step": step}
	for k, v := range details {
		d[k] = v
	}
	return Event{Type: TypeStatus, Data: StatusData{Status: statusThinking, Message: message, Details: d}}
}

func errorEvent(code int, message, internal string) Event {
	return Event{Type: TypeStatus, Data: StatusData{
		Status:  statusError,
		Message: message,
		Details: map[string]any{
			"error_code":       code,
			"internal_message": internal,
		},
	}}
}

func resultEvent(env ResultEnvelope) Event {
	return Event{Type: TypeResult, Data: env}
}
