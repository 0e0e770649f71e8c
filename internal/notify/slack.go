package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/domain"
)

// SlackSender delivers direct messages through a Slack bot token. Recipients
// are matched to Slack users by email; when that fails the message goes to
// the fallback channel, if one is configured.
type SlackSender struct {
	api             *slack.Client
	fallbackChannel string
}

// NewSlackSender returns nil when no bot token is configured.
func NewSlackSender(cfg config.NotificationConfig) *SlackSender {
	token := strings.TrimSpace(cfg.SlackToken)
	if token == "" {
		return nil
	}
	opts := []slack.Option{}
	if base := strings.TrimSpace(cfg.SlackAPIBase); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, slack.OptionAPIURL(base))
	}
	return &SlackSender{
		api:             slack.New(token, opts...),
		fallbackChannel: strings.TrimSpace(cfg.SlackChannel),
	}
}

// Send posts data to the recipient's DM, or to the fallback channel.
func (s *SlackSender) Send(ctx context.Context, to Recipient, data TemplateData) (DeliveryResult, error) {
	channelID, err := s.resolveChannel(ctx, to)
	if err != nil {
		return DeliveryResult{}, err
	}

	text := fmt.Sprintf("*%s*\n%s", data.Subject, data.Body)
	if data.Link != "" {
		text += fmt.Sprintf("\n<%s|Open ticket>", data.Link)
	}
	postedChannel, ts, err := s.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("slack post: %w", err)
	}
	return DeliveryResult{Channel: domain.ChannelSlack, Recipient: postedChannel, MessageID: ts}, nil
}

func (s *SlackSender) resolveChannel(ctx context.Context, to Recipient) (string, error) {
	if strings.TrimSpace(to.Email) != "" {
		user, err := s.api.GetUserByEmailContext(ctx, to.Email)
		if err == nil && user != nil && user.ID != "" {
			ch, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
				Users: []string{user.ID},
			})
			if err == nil && ch != nil && ch.ID != "" {
				return ch.ID, nil
			}
		}
	}
	if s.fallbackChannel != "" {
		return s.fallbackChannel, nil
	}
	return "", fmt.Errorf("no slack destination for user %s", to.UserID)
}
