// Package notify pushes agent signals to the owner's Slack channel:
// positions opened, winnings claimed, lifecycle changes, and failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/OddsClaw/OddsClaw/internal/bus"
)

// Config configures the Slack notifier.
type Config struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Channel string `json:"channel" envconfig:"CHANNEL"`
	APIBase string `json:"api_base,omitempty" envconfig:"API_BASE"`
}

type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier forwards bus notifications to Slack.
type SlackNotifier struct {
	client  slackClient
	channel string
}

// NewSlackNotifier creates a notifier from config. Returns nil when
// disabled, which callers treat as "no notifier".
func NewSlackNotifier(cfg Config) *SlackNotifier {
	if !cfg.Enabled || cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	opts := []slack.Option{}
	if cfg.APIBase != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIBase))
	}
	return &SlackNotifier{
		client:  slack.New(cfg.Token, opts...),
		channel: cfg.Channel,
	}
}

// Attach subscribes the notifier to the signal topics it reports on.
func (n *SlackNotifier) Attach(b *bus.Bus) {
	for _, topic := range []string{bus.TopicPosition, bus.TopicClaim, bus.TopicLifecycle, bus.TopicFailure} {
		topic := topic
		b.Subscribe(topic, func(note *bus.Notification) {
			n.post(*note)
		})
	}
}

func (n *SlackNotifier) post(note bus.Notification) {
	text := FormatNotification(note)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false)); err != nil {
		slog.Warn("Slack notification failed", "topic", note.Topic, "error", err)
	}
}

// FormatNotification renders one notification as a Slack message line.
func FormatNotification(note bus.Notification) string {
	switch note.Topic {
	case bus.TopicPosition:
		return fmt.Sprintf(":chart_with_upwards_trend: %s on market %s (%s)", note.Text, note.SubjectID, note.Amount)
	case bus.TopicClaim:
		return fmt.Sprintf(":moneybag: %s: %s", note.Text, note.Amount)
	case bus.TopicLifecycle:
		return fmt.Sprintf(":rotating_light: %s", note.Text)
	case bus.TopicFailure:
		if note.SubjectID != "" {
			return fmt.Sprintf(":warning: %s (market %s)", note.Text, note.SubjectID)
		}
		return fmt.Sprintf(":warning: %s", note.Text)
	default:
		return note.Text
	}
}
