package telemetry

import "time"

// CognitiveState is the committed discrete label for a user's current
// attentional capacity.
type CognitiveState string

const (
	StateNormal              CognitiveState = "normal"
	StateHyperfocus          CognitiveState = "hyperfocus"
	StateApproachingOverload CognitiveState = "approaching_overload"
	StateOverload            CognitiveState = "overload"

	// StateStale is a pseudo-state for users whose telemetry went quiet.
	// Consumers treat it as Normal: under-triggering automation is safer
	// than over-triggering it.
	StateStale CognitiveState = "stale"
)

// Sample is one multi-signal telemetry reading for a user. Samples are
// ephemeral; each new sample supersedes the previous one.
type Sample struct {
	UserID     string             `json:"user_id"`
	CapturedAt time.Time          `json:"captured_at"`
	Signals    map[string]float64 `json:"signals"`
}

// Classification is the outcome of ingesting one sample.
type Classification struct {
	Score        float64        `json:"score"` // load score in [0,100]
	State        CognitiveState `json:"state"` // committed state after hysteresis
	Transitioned bool           `json:"transitioned"`
}

// Transition describes a committed state change.
type Transition struct {
	UserID string
	From   CognitiveState
	To     CognitiveState
	Score  float64
	At     time.Time
}

// TransitionHandler receives committed transitions in commit order for a
// given user.
type TransitionHandler func(t Transition)

// StateReader is the read-only view of per-user cognitive state consumed by
// the action router. The classifier is the sole writer.
type StateReader interface {
	State(userID string) CognitiveState
}
