package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/provider"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/sanitize"
	"go.uber.org/zap"
)

type executor func(ctx context.Context, req *Request) *Result

// Context tags double as cache namespaces and provider-routing purposes.
const (
	tagTaskBreakdown = "task_breakdown"
	tagCommunication = "communication_translation"
	tagMeetingPlan   = "meeting_plan"
)

// fallbackPayloads are the static responses served when generation or
// sanitization fails. A failed call must never surface as a blank response.
var fallbackPayloads = map[string]interface{}{
	tagTaskBreakdown: map[string]interface{}{
		"steps": []interface{}{
			"Write down the single next physical action.",
			"Set a 10 minute timer and start only that action.",
			"Reassess when the timer ends.",
		},
	},
	tagCommunication: map[string]interface{}{
		"summary": "A new message arrived. It has been preserved and can be read when you are ready.",
		"urgency": "unknown",
	},
	tagMeetingPlan: map[string]interface{}{
		"agenda": []interface{}{"Clarify the goal", "Decide owners", "Agree next steps"},
		"note":   "Auto-generated agenda unavailable; using the standard template.",
	},
}

func (r *Router) execInitiateTask(ctx context.Context, req *Request) *Result {
	p := req.InitiateTask
	prompt := fmt.Sprintf(
		"Break the task %q into 3-5 small, concrete steps sized for reduced working memory. Respond with JSON: {\"steps\": [..]}.",
		p.Title)
	if p.DurationMin > 0 {
		prompt += fmt.Sprintf(" The user has %d minutes.", p.DurationMin)
	}
	prompt = r.withRecalledContext(ctx, req.UserID, p.Title, prompt)

	res := r.generate(ctx, req.UserID, tagTaskBreakdown, prompt)
	if res.Status == StatusSuccess {
		res.Message = "task breakdown ready"
	}
	return res
}

func (r *Router) execProcessCommunication(ctx context.Context, req *Request) *Result {
	p := req.ProcessCommunication
	prompt := fmt.Sprintf(
		"Rewrite this message plainly and flag its urgency. Respond with JSON: {\"summary\": str, \"urgency\": \"low\"|\"normal\"|\"high\"}.\nChannel: %s\nFrom: %s\nMessage: %s",
		p.Channel, p.Sender, p.Body)

	res := r.generate(ctx, req.UserID, tagCommunication, prompt)
	if res.Status == StatusSuccess {
		res.Message = "communication translated"
	}
	return res
}

func (r *Router) execScheduleMeeting(ctx context.Context, req *Request) *Result {
	p := req.ScheduleMeeting
	prompt := fmt.Sprintf(
		"Draft a short agenda for the meeting %q with %d attendees. Respond with JSON: {\"agenda\": [..]}.",
		p.Title, len(p.Attendees))

	res := r.generate(ctx, req.UserID, tagMeetingPlan, prompt)
	if res.Status == StatusSuccess {
		res.Message = "meeting plan ready"
	}
	// The calendar write itself belongs to the actuator layer.
	res.SideEffects = append(res.SideEffects, SideEffect{
		UserID: req.UserID,
		Kind:   EffectInsertCalendarBlock,
		Note:   p.Title,
	})
	return res
}

func (r *Router) execRecallContext(ctx context.Context, req *Request) *Result {
	p := req.RecallContext
	if r.memory == nil {
		return &Result{
			Status:   StatusError,
			Message:  "memory store unavailable",
			Fallback: true,
		}
	}
	contents, err := r.memory.SearchContentOnly(ctx, p.Query, req.UserID, p.TopK)
	if err != nil {
		// Memory retrieval has no silent default; surface the failure but
		// keep the result renderable.
		r.logger.Error("memory recall failed",
			zap.String("user", req.UserID), zap.Error(err))
		return &Result{
			Status:   StatusError,
			Message:  "memory recall failed",
			Fallback: true,
		}
	}
	return &Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("%d memories recalled", len(contents)),
		Payload: contents,
	}
}

// generate is the shared cache -> generate -> sanitize -> cache path. Any
// failure resolves to the static fallback for the context tag.
func (r *Router) generate(ctx context.Context, userID, tag, prompt string) *Result {
	if cached, ok := r.cache.Get(ctx, prompt, tag); ok {
		var v interface{}
		if err := json.Unmarshal([]byte(cached), &v); err == nil {
			return &Result{Status: StatusSuccess, Payload: v}
		}
		r.logger.Warn("cache entry unparseable, regenerating", zap.String("tag", tag))
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := r.gen.Generate(genCtx, tag, &provider.GenerateRequest{
		System: "You are an assistant for users with limited cognitive bandwidth. Keep output minimal and strictly follow the requested JSON shape.",
		Prompt: prompt,
	})
	if err != nil {
		r.logger.Warn("generation backend failed, serving fallback",
			zap.String("user", userID), zap.String("tag", tag), zap.Error(err))
		return r.fallback(tag, "generation backend unavailable")
	}

	sr := sanitize.Sanitize(resp.Text)
	if !sr.OK() {
		r.logger.Warn("generated output unusable after sanitization, serving fallback",
			zap.String("user", userID),
			zap.String("tag", tag),
			zap.Strings("passes", sr.Passes))
		return r.fallback(tag, "generated output could not be parsed")
	}

	if canonical, err := json.Marshal(sr.Value); err == nil {
		r.cache.Put(ctx, prompt, tag, string(canonical), 0)
	}
	return &Result{Status: StatusSuccess, Payload: sr.Value}
}

func (r *Router) fallback(tag, reason string) *Result {
	return &Result{
		Status:   StatusError,
		Message:  reason,
		Payload:  fallbackPayloads[tag],
		Fallback: true,
	}
}

// withRecalledContext prepends semantically recalled memories to a prompt.
// Recall failure here is tolerable: the breakdown still works without
// history, so we log and continue rather than abort the request.
func (r *Router) withRecalledContext(ctx context.Context, userID, query, prompt string) string {
	if r.memory == nil {
		return prompt
	}
	contents, err := r.memory.SearchContentOnly(ctx, query, userID, 3)
	if err != nil {
		r.logger.Warn("context recall failed, continuing without it",
			zap.String("user", userID), zap.Error(err))
		return prompt
	}
	if len(contents) == 0 {
		return prompt
	}
	return "Relevant context about this user:\n- " + strings.Join(contents, "\n- ") + "\n\n" + prompt
}
