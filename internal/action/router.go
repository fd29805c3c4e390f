package action

import (
	"context"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/provider"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
	"go.uber.org/zap"
)

// generateTimeout bounds every outbound generation call so a slow backend
// cannot stall routing. A timeout reads as a sanitization failure to the
// caller: the static fallback applies.
const generateTimeout = 20 * time.Second

// generator is the slice of the provider router this package needs.
type generator interface {
	Generate(ctx context.Context, purpose string, req *provider.GenerateRequest) (*provider.GenerateResponse, error)
}

// contentCache is satisfied by *cache.SemanticCache.
type contentCache interface {
	Get(ctx context.Context, prompt, contextTag string) (string, bool)
	Put(ctx context.Context, prompt, contextTag, value string, ttl time.Duration)
}

// recaller is satisfied by *memory.Store.
type recaller interface {
	SearchContentOnly(ctx context.Context, query, userID string, topK int) ([]string, error)
}

// messageBuffer is satisfied by *buffer.Buffer.
type messageBuffer interface {
	Hold(ctx context.Context, userID, channel, sender, body string) error
}

// policyRule is one row of the ordered policy table. Rules are evaluated
// top to bottom and the first match wins; order is policy, not an
// implementation detail. Rules must be decidable without I/O so a slow
// backend can never defeat a protection.
type policyRule struct {
	name  string
	match func(state telemetry.CognitiveState, req *Request) bool
	build func(req *Request) *Result
}

// Router arbitrates action requests against cognitive state.
type Router struct {
	states telemetry.StateReader
	gen    generator
	cache  contentCache
	memory recaller
	buffer messageBuffer
	policy []policyRule
	execs  map[RequestType]executor
	logger *zap.Logger
}

// NewRouter wires an action router. memory may be nil (recall requests
// then fail with a fallback note); cache and gen must be non-nil.
func NewRouter(states telemetry.StateReader, gen generator, cache contentCache, memory recaller, logger *zap.Logger) *Router {
	r := &Router{
		states: states,
		gen:    gen,
		cache:  cache,
		memory: memory,
		logger: logger,
	}
	r.policy = []policyRule{
		{
			// Burnout protection: block new work while overloaded and
			// point the user at the recovery protocol instead.
			name: "overload_blocks_new_tasks",
			match: func(state telemetry.CognitiveState, req *Request) bool {
				return req.Type == TypeInitiateTask && state == telemetry.StateOverload
			},
			build: func(req *Request) *Result {
				return &Result{
					Status:  StatusIntervention,
					Message: "cognitive load is too high to start new work; recovery protocol engaged",
					SideEffects: []SideEffect{
						{UserID: req.UserID, Kind: EffectRecoveryProtocol, Note: req.InitiateTask.Title},
					},
				}
			},
		},
		{
			// Flow protection: hold messages while hyperfocused.
			name: "hyperfocus_buffers_communications",
			match: func(state telemetry.CognitiveState, req *Request) bool {
				return req.Type == TypeProcessCommunication && state == telemetry.StateHyperfocus
			},
			build: func(req *Request) *Result {
				return &Result{
					Status:  StatusBuffered,
					Message: "message held until focus session ends",
					SideEffects: []SideEffect{
						{UserID: req.UserID, Kind: EffectQueueMessage, Note: req.ProcessCommunication.Channel},
					},
				}
			},
		},
	}
	r.execs = map[RequestType]executor{
		TypeInitiateTask:         r.execInitiateTask,
		TypeProcessCommunication: r.execProcessCommunication,
		TypeScheduleMeeting:      r.execScheduleMeeting,
		TypeRecallContext:        r.execRecallContext,
	}
	return r
}

// SetBuffer attaches a durable message buffer. Without one, buffered
// communications exist only as side effects for the actuator layer.
func (r *Router) SetBuffer(b messageBuffer) {
	r.buffer = b
}

// Route applies the policy table against the user's current committed
// state, then dispatches to the type-specific executor. Stale reads as
// Normal: under-triggering is safer than over-triggering. Route never
// mutates cognitive state.
func (r *Router) Route(ctx context.Context, req *Request) *Result {
	state := r.states.State(req.UserID)
	if state == telemetry.StateStale {
		state = telemetry.StateNormal
	}

	for _, rule := range r.policy {
		if rule.match(state, req) {
			r.logger.Info("policy override applied",
				zap.String("user", req.UserID),
				zap.String("rule", rule.name),
				zap.String("state", string(state)))
			res := rule.build(req)
			if res.Status == StatusBuffered && req.ProcessCommunication != nil && r.buffer != nil {
				p := req.ProcessCommunication
				if err := r.buffer.Hold(ctx, req.UserID, p.Channel, p.Sender, p.Body); err != nil {
					// The decision stands; only durability is lost.
					r.logger.Error("held message not persisted",
						zap.String("user", req.UserID), zap.Error(err))
				}
			}
			return res
		}
	}

	exec, ok := r.execs[req.Type]
	if !ok {
		return &Result{Status: StatusIgnored, Message: "no executor for request type"}
	}
	return exec(ctx, req)
}
