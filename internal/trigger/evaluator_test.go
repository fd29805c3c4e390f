package trigger

import (
	"reflect"
	"testing"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
)

func tr(from, to telemetry.CognitiveState) telemetry.Transition {
	return telemetry.Transition{UserID: "u1", From: from, To: to}
}

func kinds(intents []Intent) []IntentKind {
	out := make([]IntentKind, len(intents))
	for i, in := range intents {
		out[i] = in.Kind
	}
	return out
}

func TestEnterOverload(t *testing.T) {
	got := kinds(Evaluate(tr(telemetry.StateNormal, telemetry.StateOverload)))
	want := []IntentKind{IntentActivateSensoryBuffer, IntentSuggestMicroBreak}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEnterHyperfocus(t *testing.T) {
	got := kinds(Evaluate(tr(telemetry.StateNormal, telemetry.StateHyperfocus)))
	want := []IntentKind{IntentMuteCommunications}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLeaveProtectedRestoresFirst(t *testing.T) {
	got := kinds(Evaluate(tr(telemetry.StateOverload, telemetry.StateNormal)))
	want := []IntentKind{IntentRestoreDefaults}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Hyperfocus straight into Overload: unwind the mute, then buffer.
	got = kinds(Evaluate(tr(telemetry.StateHyperfocus, telemetry.StateOverload)))
	want = []IntentKind{IntentRestoreDefaults, IntentActivateSensoryBuffer, IntentSuggestMicroBreak}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestApproachingSoftens(t *testing.T) {
	got := kinds(Evaluate(tr(telemetry.StateNormal, telemetry.StateApproachingOverload)))
	want := []IntentKind{IntentSoftenNotifications}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStaleRaisesNothing(t *testing.T) {
	if got := Evaluate(tr(telemetry.StateOverload, telemetry.StateStale)); got != nil {
		t.Errorf("overload->stale should raise nothing, got %v", got)
	}
	if got := Evaluate(tr(telemetry.StateStale, telemetry.StateNormal)); got != nil {
		t.Errorf("stale->normal should raise nothing, got %v", got)
	}
}

func TestIdempotent(t *testing.T) {
	edge := tr(telemetry.StateApproachingOverload, telemetry.StateOverload)
	first := Evaluate(edge)
	second := Evaluate(edge)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-delivery produced different intents: %v vs %v", first, second)
	}
	for _, in := range first {
		if in.UserID != "u1" {
			t.Errorf("intent missing target user: %+v", in)
		}
	}
}
