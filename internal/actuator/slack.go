package actuator

import (
	"context"
	"fmt"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/trigger"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// snoozeMinutes is how long a mute directive silences Slack. A focus
// session that outlasts it raises a fresh directive on the next
// transition, so a short window errs on the side of reachability.
const snoozeMinutes = 50

// SlackAdapter adjusts the user's Slack environment: do-not-disturb
// snoozes for mute directives and gentle notices to a channel for the
// rest.
type SlackAdapter struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

func NewSlackAdapter(botToken, channel string, logger *zap.Logger) *SlackAdapter {
	return &SlackAdapter{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) Apply(ctx context.Context, d Directive) error {
	switch trigger.IntentKind(d.Kind) {
	case trigger.IntentMuteCommunications:
		if _, err := a.client.SetSnoozeContext(ctx, snoozeMinutes); err != nil {
			return fmt.Errorf("slack snooze: %w", err)
		}
		a.logger.Info("slack notifications snoozed",
			zap.String("user", d.UserID), zap.Int("minutes", snoozeMinutes))
		return nil

	case trigger.IntentRestoreDefaults:
		if _, err := a.client.EndSnoozeContext(ctx); err != nil {
			// Ending a snooze that never started is a normal outcome.
			a.logger.Debug("slack end snooze", zap.Error(err))
		}
		return nil

	case trigger.IntentSuggestMicroBreak:
		return a.notice(ctx, "Time for a short break — step away for five minutes.")

	case trigger.IntentSoftenNotifications:
		return a.notice(ctx, "Cognitive load is rising; non-urgent messages will be summarized.")
	}

	switch d.Kind {
	case action.EffectRecoveryProtocol:
		return a.notice(ctx, "New tasks are paused while you recover. Current work is saved.")
	case action.EffectQueueMessage:
		return a.notice(ctx, fmt.Sprintf("A message on %s is being held until your focus session ends.", d.Note))
	case KindDeliverHeld:
		return a.notice(ctx, d.Note)
	}

	return nil
}

func (a *SlackAdapter) notice(ctx context.Context, text string) error {
	if a.channel == "" {
		return nil
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack notice: %w", err)
	}
	return nil
}

func (a *SlackAdapter) Close() error { return nil }
