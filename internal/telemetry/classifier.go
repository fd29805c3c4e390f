package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/config"
	"go.uber.org/zap"
)

// userState is the per-user classification record. Its mutex serializes
// same-user samples so they apply in arrival order; samples for different
// users never contend.
type userState struct {
	mu         sync.Mutex
	committed  CognitiveState
	candidate  CognitiveState
	streak     int
	score      float64
	lastSample time.Time
}

// Classifier converts telemetry samples into a stable cognitive state. It
// owns the per-user state map exclusively; everyone else reads through the
// StateReader interface.
type Classifier struct {
	cfg     config.TelemetryConfig
	handler TransitionHandler

	mu    sync.RWMutex
	users map[string]*userState

	logger *zap.Logger
}

// NewClassifier creates a classifier from the configured signal table and
// thresholds.
func NewClassifier(cfg config.TelemetryConfig, logger *zap.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		users:  make(map[string]*userState),
		logger: logger,
	}
}

// OnTransition registers the handler that receives committed transitions.
// Must be called before the first Ingest; transitions for one user are
// delivered in commit order.
func (c *Classifier) OnTransition(h TransitionHandler) {
	c.handler = h
}

// Ingest applies one sample: recomputes the load score, updates the
// candidate state, and commits it once it has held for the configured dwell
// window. Malformed signal values are clamped, never rejected.
func (c *Classifier) Ingest(sample Sample) Classification {
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}

	us := c.user(sample.UserID)
	us.mu.Lock()
	defer us.mu.Unlock()

	score := c.loadScore(sample.Signals)
	candidate := c.candidateState(score, sample.Signals)

	us.score = score
	us.lastSample = sample.CapturedAt

	if candidate == us.candidate {
		us.streak++
	} else {
		us.candidate = candidate
		us.streak = 1
	}

	transitioned := false
	// A Stale user re-commits on the first sample: the dwell window guards
	// against oscillation between live states, not against waking up.
	if us.committed == StateStale && candidate != StateStale {
		transitioned = c.commit(us, sample.UserID, candidate, score, sample.CapturedAt)
	} else if us.streak >= c.cfg.DwellSamples {
		transitioned = c.commit(us, sample.UserID, candidate, score, sample.CapturedAt)
	}

	return Classification{Score: score, State: us.committed, Transitioned: transitioned}
}

// commit installs the candidate as the committed state. Caller holds us.mu.
func (c *Classifier) commit(us *userState, userID string, next CognitiveState, score float64, at time.Time) bool {
	prev := us.committed
	if prev == next {
		return false
	}
	us.committed = next
	c.logger.Info("cognitive state committed",
		zap.String("user", userID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.Float64("score", score))
	if c.handler != nil {
		c.handler(Transition{UserID: userID, From: prev, To: next, Score: score, At: at})
	}
	return true
}

// loadScore is the weighted sum over normalized signal channels. Each signal
// is clamped to its configured domain, scaled to [0,100], and weighted;
// unknown signals are ignored. The result is bounded to [0,100].
func (c *Classifier) loadScore(signals map[string]float64) float64 {
	var score float64
	for _, sc := range c.cfg.Signals {
		raw, ok := signals[sc.Name]
		if !ok {
			continue
		}
		score += sc.Weight * normalize(raw, sc.Min, sc.Max)
	}
	return clamp(score, 0, 100)
}

// candidateState maps a score to a candidate state. Absorption (low context
// switching and low pause frequency with sustained keystroke activity)
// flags Hyperfocus regardless of the raw score.
func (c *Classifier) candidateState(score float64, signals map[string]float64) CognitiveState {
	if c.absorbed(signals) {
		return StateHyperfocus
	}
	switch {
	case score > c.cfg.OverloadThreshold:
		return StateOverload
	case score >= c.cfg.ApproachThreshold:
		return StateApproachingOverload
	default:
		return StateNormal
	}
}

func (c *Classifier) absorbed(signals map[string]float64) bool {
	switches, okS := signals["context_switches"]
	pauses, okP := signals["pause_frequency"]
	keys, okK := signals["keystroke_rate"]
	if !okS || !okP || !okK {
		return false
	}
	return sanitizeValue(switches) < c.cfg.HyperfocusSwitches &&
		sanitizeValue(pauses) < c.cfg.HyperfocusPauses &&
		sanitizeValue(keys) > c.cfg.HyperfocusKeys
}

// State implements StateReader. Unknown users read as Normal.
func (c *Classifier) State(userID string) CognitiveState {
	c.mu.RLock()
	us, ok := c.users[userID]
	c.mu.RUnlock()
	if !ok {
		return StateNormal
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	return us.committed
}

// Score returns the latest load score for a user, or 0 if unknown.
func (c *Classifier) Score(userID string) float64 {
	c.mu.RLock()
	us, ok := c.users[userID]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	return us.score
}

// Sweep degrades users without recent samples to Stale and evicts entries
// idle past the eviction window. Intended to run on a ticker.
func (c *Classifier) Sweep(now time.Time) {
	staleAfter := time.Duration(c.cfg.StaleAfterSeconds) * time.Second
	evictAfter := time.Duration(c.cfg.EvictAfterSeconds) * time.Second

	var stale []Transition
	c.mu.Lock()
	for id, us := range c.users {
		us.mu.Lock()
		idle := now.Sub(us.lastSample)
		switch {
		case idle > evictAfter:
			us.mu.Unlock()
			delete(c.users, id)
			c.logger.Debug("evicted idle user state", zap.String("user", id))
			continue
		case idle > staleAfter && us.committed != StateStale:
			prev := us.committed
			us.committed = StateStale
			us.candidate = StateStale
			us.streak = 0
			c.logger.Info("user telemetry stale",
				zap.String("user", id),
				zap.String("from", string(prev)))
			stale = append(stale, Transition{UserID: id, From: prev, To: StateStale, At: now})
		}
		us.mu.Unlock()
	}
	c.mu.Unlock()

	// The handler may be slow (audit writes, actuator dispatch); deliver
	// off the locks so ingestion for other users never waits on it. Each
	// user is marked stale at most once per sweep, so per-user commit
	// order holds.
	if c.handler != nil {
		for _, t := range stale {
			c.handler(t)
		}
	}
}

// ActiveUsers returns the number of tracked user entries.
func (c *Classifier) ActiveUsers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// user returns the entry for userID, creating it on first telemetry.
func (c *Classifier) user(userID string) *userState {
	c.mu.RLock()
	us, ok := c.users[userID]
	c.mu.RUnlock()
	if ok {
		return us
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if us, ok = c.users[userID]; ok {
		return us
	}
	us = &userState{committed: StateNormal, candidate: StateNormal}
	c.users[userID] = us
	return us
}

// normalize clamps raw into [min,max] then scales to [0,100]. NaN and Inf
// read as the domain floor.
func normalize(raw, min, max float64) float64 {
	if max <= min {
		return 0
	}
	raw = sanitizeValue(raw)
	raw = clamp(raw, min, max)
	return (raw - min) / (max - min) * 100
}

func sanitizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
