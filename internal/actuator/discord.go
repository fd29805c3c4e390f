package actuator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/trigger"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter nudges users over Discord DMs. Discord has no per-user
// server-side mute API for bots, so mute directives degrade to a notice
// telling the user what is being held back.
type DiscordAdapter struct {
	session  *discordgo.Session
	channels map[string]string // userID -> DM channel ID
	mu       sync.Mutex
	logger   *zap.Logger
}

func NewDiscordAdapter(botToken string, logger *zap.Logger) (*DiscordAdapter, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username))

	return &DiscordAdapter{
		session:  session,
		channels: make(map[string]string),
		logger:   logger,
	}, nil
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) Apply(_ context.Context, d Directive) error {
	var text string
	switch trigger.IntentKind(d.Kind) {
	case trigger.IntentSuggestMicroBreak:
		text = "Time for a short break — step away for five minutes."
	case trigger.IntentMuteCommunications:
		text = "Focus mode is on. Incoming messages will be held until it ends."
	case trigger.IntentSoftenNotifications:
		text = "Load is rising; non-urgent pings will be summarized for a while."
	case trigger.IntentRestoreDefaults:
		text = "Back to normal — held messages are available again."
	}

	if text == "" {
		switch d.Kind {
		case action.EffectRecoveryProtocol:
			text = "New tasks are paused while you recover. Your current work is saved."
		case action.EffectQueueMessage:
			text = fmt.Sprintf("A message on %s is being held until your focus session ends.", d.Note)
		case KindDeliverHeld:
			text = d.Note
		default:
			return nil
		}
	}
	return a.dm(d.UserID, text)
}

func (a *DiscordAdapter) dm(userID, text string) error {
	ch, err := a.dmChannel(userID)
	if err != nil {
		return err
	}
	if _, err := a.session.ChannelMessageSend(ch, text); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (a *DiscordAdapter) dmChannel(userID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.channels[userID]; ok {
		return ch, nil
	}
	ch, err := a.session.UserChannelCreate(userID)
	if err != nil {
		return "", fmt.Errorf("discord dm channel: %w", err)
	}
	a.channels[userID] = ch.ID
	return ch.ID, nil
}

func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}
