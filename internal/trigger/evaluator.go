// Package trigger maps committed cognitive state transitions to explicit
// side-effect intents. The evaluator is a rules table: it performs no I/O,
// holds no state, and re-delivering the same transition yields the same
// intents, so the actuator layer can de-duplicate safely.
package trigger

import (
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
)

// IntentKind names one environment adjustment the actuator layer knows how
// to perform.
type IntentKind string

const (
	IntentActivateSensoryBuffer IntentKind = "activate_sensory_buffer"
	IntentSuggestMicroBreak     IntentKind = "suggest_micro_break"
	IntentMuteCommunications    IntentKind = "mute_communications"
	IntentSoftenNotifications   IntentKind = "soften_notifications"
	IntentRestoreDefaults       IntentKind = "restore_defaults"
)

// Intent is one requested environment adjustment, addressed to a user so
// the actuator layer can de-duplicate per (user, kind).
type Intent struct {
	UserID string     `json:"user_id"`
	Kind   IntentKind `json:"kind"`
}

// onEnter holds the intents raised when a state is entered; leaving a
// protected state (Overload, Hyperfocus) additionally restores defaults
// first, so the actuator unwinds before applying the next adjustment.
var onEnter = map[telemetry.CognitiveState][]IntentKind{
	telemetry.StateOverload:            {IntentActivateSensoryBuffer, IntentSuggestMicroBreak},
	telemetry.StateHyperfocus:          {IntentMuteCommunications},
	telemetry.StateApproachingOverload: {IntentSoftenNotifications},
}

var protected = map[telemetry.CognitiveState]bool{
	telemetry.StateOverload:   true,
	telemetry.StateHyperfocus: true,
}

// Evaluate returns the intents raised by a committed transition, in a fixed
// order: restore-defaults (when leaving a protected state) before the
// entered state's own intents. Transitions involving Stale raise nothing:
// going quiet is an observability event, not a behavioral one, and firing
// automation on it would violate fail-open.
func Evaluate(t telemetry.Transition) []Intent {
	if t.From == t.To || t.From == telemetry.StateStale || t.To == telemetry.StateStale {
		return nil
	}

	var kinds []IntentKind
	if protected[t.From] {
		kinds = append(kinds, IntentRestoreDefaults)
	}
	kinds = append(kinds, onEnter[t.To]...)

	out := make([]Intent, len(kinds))
	for i, k := range kinds {
		out[i] = Intent{UserID: t.UserID, Kind: k}
	}
	return out
}
