package notify

import (
	"context"
	"fmt"
	"net/http"
)

// discordLimit is the webhook content length limit.
const discordLimit = 2000

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender posts to a Discord webhook.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Send posts title and message as plain content, truncated to the webhook limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := "**" + title + "**"
	if message != "" {
		content += "\n" + message
	}
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-3]) + "..."
	}
	if err := postJSON(ctx, d.client, d.webhookURL, map[string]string{"content": content}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
