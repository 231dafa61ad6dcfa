package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionHeartbeat Action = "heartbeat"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is every client message. Which fields are read depends on
// Action:
//   - autosave: q_id, ans
//   - heartbeat: seconds (client countdown)
//   - submit: answers (optional; autosaved answers are graded when absent)
type RequestPayload struct {
	Action  Action            `json:"action"`
	QID     string            `json:"q_id,omitempty"`
	Answer  string            `json:"ans,omitempty"`
	Seconds *int              `json:"seconds,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventSaved  Event = "saved"
	EventTime   Event = "time"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
	EventError  Event = "error"
)

// Message is the server envelope: the event name plus its payload.
type Message struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorResponse reports a failed action. Code matches the HTTP API codes.
type ErrorResponse struct {
	Event     Event  `json:"event"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}
