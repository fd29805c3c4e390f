// Package action arbitrates explicit automation requests against the
// user's current cognitive state. Burnout and flow protection are hard
// overrides decided before any backend call; everything else dispatches to
// a type-specific executor.
package action

import (
	"encoding/json"
	"fmt"
)

// RequestType tags an action request variant.
type RequestType string

const (
	TypeInitiateTask         RequestType = "initiate_task"
	TypeProcessCommunication RequestType = "process_communication"
	TypeScheduleMeeting      RequestType = "schedule_meeting"
	TypeRecallContext        RequestType = "recall_context"
)

// Status is the outcome class of a routed action.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusBuffered     Status = "buffered"
	StatusIntervention Status = "intervention"
	StatusIgnored      Status = "ignored"
	StatusError        Status = "error"
)

// Side-effect kinds the actuator layer executes from an ActionResult.
const (
	EffectRecoveryProtocol    = "notify_recovery_protocol"
	EffectQueueMessage        = "queue_message"
	EffectInsertCalendarBlock = "insert_calendar_block"
)

// SideEffect is one actuator call requested by the router. The router
// never calls third-party services itself; it returns intents for the
// actuator layer to execute.
type SideEffect struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Note   string `json:"note,omitempty"`
}

// Request is the decoded, validated action request: exactly one payload
// field is set, matching Type.
type Request struct {
	UserID string
	Type   RequestType

	InitiateTask         *InitiateTaskPayload
	ProcessCommunication *ProcessCommunicationPayload
	ScheduleMeeting      *ScheduleMeetingPayload
	RecallContext        *RecallContextPayload
}

type InitiateTaskPayload struct {
	Title       string `json:"title"`
	DurationMin int    `json:"duration_min,omitempty"`
}

type ProcessCommunicationPayload struct {
	Channel string `json:"channel"`
	Sender  string `json:"sender,omitempty"`
	Body    string `json:"body"`
}

type ScheduleMeetingPayload struct {
	Title       string   `json:"title"`
	Attendees   []string `json:"attendees,omitempty"`
	DurationMin int      `json:"duration_min,omitempty"`
}

type RecallContextPayload struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Result is the immutable outcome returned to the caller.
type Result struct {
	Status      Status       `json:"status"`
	Message     string       `json:"message,omitempty"`
	Payload     interface{}  `json:"payload,omitempty"`
	Fallback    bool         `json:"fallback,omitempty"`
	SideEffects []SideEffect `json:"side_effects,omitempty"`
}

// envelope is the wire shape of an action request.
type envelope struct {
	UserID  string          `json:"user_id"`
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeRequest validates a raw request at the boundary and produces the
// typed variant. Malformed requests are rejected here so nothing dynamic
// reaches the router.
func DecodeRequest(raw []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if env.UserID == "" {
		return nil, fmt.Errorf("decode request: user_id is required")
	}

	req := &Request{UserID: env.UserID, Type: env.Type}
	switch env.Type {
	case TypeInitiateTask:
		var p InitiateTaskPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.Title == "" {
			return nil, fmt.Errorf("%s: title is required", env.Type)
		}
		req.InitiateTask = &p
	case TypeProcessCommunication:
		var p ProcessCommunicationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.Body == "" {
			return nil, fmt.Errorf("%s: body is required", env.Type)
		}
		req.ProcessCommunication = &p
	case TypeScheduleMeeting:
		var p ScheduleMeetingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.Title == "" {
			return nil, fmt.Errorf("%s: title is required", env.Type)
		}
		req.ScheduleMeeting = &p
	case TypeRecallContext:
		var p RecallContextPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.Query == "" {
			return nil, fmt.Errorf("%s: query is required", env.Type)
		}
		req.RecallContext = &p
	default:
		return nil, fmt.Errorf("unknown request type %q", env.Type)
	}
	return req, nil
}
