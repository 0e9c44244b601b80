package notifier

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/pulsegrid/controlplane/pkg/alert"
)

// SlackProvider posts alert notifications to a Slack channel via a bot
// token, grounded on the teacher's pkg/slack.Notifier.PostAlert.
type SlackProvider struct{}

// NewSlackProvider creates a SlackProvider. The bot token and channel are
// per-channel config, decrypted at send time, rather than process-global
// like the teacher's single-workspace notifier.
func NewSlackProvider() *SlackProvider {
	return &SlackProvider{}
}

func (p *SlackProvider) Kind() alert.ChannelKind { return alert.ChannelSlack }

func (p *SlackProvider) Send(ctx context.Context, config map[string]any, msg Message) error {
	token, err := stringField(config, "bot_token")
	if err != nil {
		return err
	}
	channel, err := stringField(config, "channel")
	if err != nil {
		return err
	}

	client := goslack.New(token)
	text := fmt.Sprintf("%s *%s* %s\n%s\nservice: %s", severityEmoji(msg.Severity), msg.Action, msg.Title, msg.Description, msg.Service)

	_, _, err = client.PostMessageContext(ctx, channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}

// severityEmoji mirrors the teacher's messaging.SeverityEmoji convention.
func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return ":red_circle:"
	case "high":
		return ":large_orange_circle:"
	case "medium":
		return ":large_yellow_circle:"
	default:
		return ":white_circle:"
	}
}
