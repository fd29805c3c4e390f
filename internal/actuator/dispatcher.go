// Package actuator executes environment adjustments decided elsewhere:
// trigger intents from state transitions and side effects from routed
// actions both arrive here as directives. Adapters talk to the outside
// world; the dispatcher owns fan-out and duplicate suppression.
package actuator

import (
	"context"
	"sync"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/trigger"
	"go.uber.org/zap"
)

// KindDeliverHeld delivers one message that was held back during a
// protected state. Note carries the rendered message.
const KindDeliverHeld = "deliver_held_message"

// Directive is one requested environment adjustment.
type Directive struct {
	UserID string
	Kind   string
	Note   string
}

// FromIntents converts trigger intents into directives.
func FromIntents(intents []trigger.Intent) []Directive {
	out := make([]Directive, 0, len(intents))
	for _, in := range intents {
		out = append(out, Directive{UserID: in.UserID, Kind: string(in.Kind)})
	}
	return out
}

// Adapter applies directives on one external platform. Adapters must
// tolerate kinds they do not implement by returning nil.
type Adapter interface {
	Platform() string
	Apply(ctx context.Context, d Directive) error
	Close() error
}

// dedupWindow suppresses repeats of the same (user, kind) directive.
// Transitions through noisy states can re-raise identical intents in
// quick succession; actuating twice would itself be a distraction.
const dedupWindow = 60 * time.Second

// Dispatcher fans directives out to all registered adapters. With no
// adapters registered it degrades to structured logging, which keeps
// the pipeline observable in development.
type Dispatcher struct {
	adapters []Adapter
	recent   map[string]time.Time
	mu       sync.Mutex
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		recent: make(map[string]time.Time),
		logger: logger,
		now:    time.Now,
	}
}

// RegisterAdapter adds a platform adapter.
func (d *Dispatcher) RegisterAdapter(a Adapter) {
	d.adapters = append(d.adapters, a)
	d.logger.Info("registered actuator adapter", zap.String("platform", a.Platform()))
}

// Dispatch applies each directive on every adapter. Adapter failures are
// logged and do not stop the remaining directives: a dead Slack token
// must not block the Discord nudge.
func (d *Dispatcher) Dispatch(ctx context.Context, directives []Directive) {
	for _, dir := range directives {
		if d.suppressed(dir) {
			d.logger.Debug("duplicate directive suppressed",
				zap.String("user", dir.UserID), zap.String("kind", dir.Kind))
			continue
		}

		if len(d.adapters) == 0 {
			d.logger.Info("directive (no adapters configured)",
				zap.String("user", dir.UserID),
				zap.String("kind", dir.Kind),
				zap.String("note", dir.Note))
			continue
		}

		for _, a := range d.adapters {
			if err := a.Apply(ctx, dir); err != nil {
				d.logger.Error("actuator apply failed",
					zap.String("platform", a.Platform()),
					zap.String("user", dir.UserID),
					zap.String("kind", dir.Kind),
					zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) suppressed(dir Directive) bool {
	// Each held message is distinct; dedup only applies to state
	// adjustments.
	if dir.Kind == KindDeliverHeld {
		return false
	}
	key := dir.UserID + "|" + dir.Kind
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.recent[key]; ok && now.Sub(last) < dedupWindow {
		return true
	}
	d.recent[key] = now

	// Opportunistic cleanup so the map does not grow with user churn.
	if len(d.recent) > 4096 {
		for k, t := range d.recent {
			if now.Sub(t) >= dedupWindow {
				delete(d.recent, k)
			}
		}
	}
	return false
}

// Close shuts down all adapters.
func (d *Dispatcher) Close() {
	for _, a := range d.adapters {
		if err := a.Close(); err != nil {
			d.logger.Warn("adapter close failed",
				zap.String("platform", a.Platform()), zap.Error(err))
		}
	}
}
