package telemetry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/config"
	"go.uber.org/zap"
)

func testConfig() config.TelemetryConfig {
	cfg := config.Config{}
	cfg.ApplyDefaults()
	return cfg.Telemetry
}

// hotSignals pins every channel to its domain ceiling, scoring 100.
func hotSignals() map[string]float64 {
	return map[string]float64{
		"keystroke_rate":   400,
		"pause_frequency":  30,
		"context_switches": 40,
		"error_rate":       1,
		"facial_tension":   1,
		"gaze_wander":      1,
		"vocal_energy":     1,
	}
}

func calmSignals() map[string]float64 {
	return map[string]float64{
		"keystroke_rate":   80,
		"pause_frequency":  5,
		"context_switches": 4,
		"error_rate":       0.05,
		"facial_tension":   0.1,
		"gaze_wander":      0.1,
		"vocal_energy":     0.2,
	}
}

func TestHysteresisCommitsOnThirdQualifyingSample(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	var transitions []Transition
	c.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	// Five consecutive samples all scoring above the overload threshold.
	// With dwell=3 the commit must land exactly on the third sample.
	for i := 0; i < 5; i++ {
		res := c.Ingest(Sample{UserID: "u1", Signals: hotSignals()})
		if res.Score <= 65 {
			t.Fatalf("sample %d: expected score above overload threshold, got %.1f", i, res.Score)
		}
		switch {
		case i < 2:
			if res.State != StateNormal {
				t.Errorf("sample %d: expected still Normal, got %s", i, res.State)
			}
			if res.Transitioned {
				t.Errorf("sample %d: transitioned too early", i)
			}
		case i == 2:
			if res.State != StateOverload || !res.Transitioned {
				t.Errorf("sample %d: expected commit to Overload, got %s transitioned=%v", i, res.State, res.Transitioned)
			}
		default:
			if res.State != StateOverload || res.Transitioned {
				t.Errorf("sample %d: expected stable Overload, got %s transitioned=%v", i, res.State, res.Transitioned)
			}
		}
	}

	if len(transitions) != 1 {
		t.Fatalf("expected exactly 1 transition, got %d", len(transitions))
	}
	if transitions[0].From != StateNormal || transitions[0].To != StateOverload {
		t.Errorf("unexpected transition %+v", transitions[0])
	}
}

func TestNoFlappingOnNoisySamples(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	var commits int
	c.OnTransition(func(Transition) { commits++ })

	// Alternate hot and calm samples: the candidate never holds for the
	// dwell window, so the committed state never changes.
	for i := 0; i < 10; i++ {
		sig := hotSignals()
		if i%2 == 1 {
			sig = calmSignals()
		}
		res := c.Ingest(Sample{UserID: "u1", Signals: sig})
		if res.State != StateNormal {
			t.Fatalf("sample %d: state flapped to %s", i, res.State)
		}
	}
	if commits != 0 {
		t.Errorf("expected 0 commits, got %d", commits)
	}
}

func TestHyperfocusOverride(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	// Absorbed typing: fast sustained keystrokes, near-zero switching and
	// pauses. Raw score is low but the absorption signal wins.
	sig := map[string]float64{
		"keystroke_rate":   240,
		"pause_frequency":  1,
		"context_switches": 0,
		"error_rate":       0.02,
		"facial_tension":   0.1,
		"gaze_wander":      0.05,
		"vocal_energy":     0.1,
	}
	var last Classification
	for i := 0; i < 3; i++ {
		last = c.Ingest(Sample{UserID: "u1", Signals: sig})
	}
	if last.State != StateHyperfocus {
		t.Fatalf("expected Hyperfocus after dwell, got %s", last.State)
	}
	if !last.Transitioned {
		t.Error("expected third sample to carry the transition")
	}
}

func TestMalformedSignalsClamped(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	res := c.Ingest(Sample{UserID: "u1", Signals: map[string]float64{
		"keystroke_rate":   math.NaN(),
		"error_rate":       math.Inf(1),
		"context_switches": -50,
		"bogus_channel":    9999,
	}})
	if res.Score < 0 || res.Score > 100 {
		t.Fatalf("score out of bounds: %.2f", res.Score)
	}
}

func TestStaleSweepAndRewake(t *testing.T) {
	cfg := testConfig()
	c := NewClassifier(cfg, zap.NewNop())

	var transitions []Transition
	c.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	past := time.Now().Add(-5 * time.Minute)
	c.Ingest(Sample{UserID: "u1", CapturedAt: past, Signals: calmSignals()})

	c.Sweep(time.Now())
	if got := c.State("u1"); got != StateStale {
		t.Fatalf("expected Stale after sweep, got %s", got)
	}

	// First fresh sample re-commits without waiting out the dwell window.
	res := c.Ingest(Sample{UserID: "u1", Signals: calmSignals()})
	if res.State != StateNormal || !res.Transitioned {
		t.Fatalf("expected immediate rewake to Normal, got %s transitioned=%v", res.State, res.Transitioned)
	}

	if len(transitions) != 2 {
		t.Fatalf("expected stale + rewake transitions, got %d", len(transitions))
	}
	if transitions[0].To != StateStale || transitions[1].To != StateNormal {
		t.Errorf("unexpected transition sequence: %+v", transitions)
	}
}

func TestSweepHandlerDoesNotBlockIngest(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	entered := make(chan struct{})
	release := make(chan struct{})
	c.OnTransition(func(tr Transition) {
		if tr.To == StateStale {
			close(entered)
			<-release
		}
	})

	past := time.Now().Add(-5 * time.Minute)
	c.Ingest(Sample{UserID: "idle", CapturedAt: past, Signals: calmSignals()})

	swept := make(chan struct{})
	go func() {
		c.Sweep(time.Now())
		close(swept)
	}()
	<-entered

	// A sample for an unrelated user must land while the stale handler is
	// still running.
	ingested := make(chan struct{})
	go func() {
		c.Ingest(Sample{UserID: "busy", Signals: calmSignals()})
		close(ingested)
	}()
	select {
	case <-ingested:
	case <-time.After(time.Second):
		t.Fatal("ingest for unrelated user blocked behind the sweep handler")
	}

	close(release)
	<-swept
}

func TestEviction(t *testing.T) {
	cfg := testConfig()
	c := NewClassifier(cfg, zap.NewNop())

	longAgo := time.Now().Add(-2 * time.Hour)
	c.Ingest(Sample{UserID: "gone", CapturedAt: longAgo, Signals: calmSignals()})
	c.Sweep(time.Now())

	if n := c.ActiveUsers(); n != 0 {
		t.Errorf("expected 0 tracked users after eviction, got %d", n)
	}
	if got := c.State("gone"); got != StateNormal {
		t.Errorf("evicted user should read as Normal, got %s", got)
	}
}

func TestConcurrentUsersDoNotInterfere(t *testing.T) {
	c := NewClassifier(testConfig(), zap.NewNop())

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Ingest(Sample{UserID: id, Signals: hotSignals()})
			}
		}(u)
	}
	wg.Wait()

	for _, u := range users {
		if got := c.State(u); got != StateOverload {
			t.Errorf("user %s: expected Overload, got %s", u, got)
		}
	}
}
