// Package notify announces downloaded episodes on Telegram.
package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/models"
	"gopkg.in/telebot.v3"
)

// TokenEnv holds the bot token.
const TokenEnv = "PODCATCHER_TG_BOT_TOKEN"

const maxSummary = 800

// Telegram posts one message per downloaded episode to a channel.
type Telegram struct {
	bot     BotSender
	channel int64
}

// NewTelegram creates a bot from the token in TokenEnv. apiURL may be empty
// for the public Bot API.
func NewTelegram(channel int64, apiURL string) (*Telegram, error) {
	botToken := os.Getenv(TokenEnv)
	if botToken == "" {
		return nil, fmt.Errorf("%s is not set", TokenEnv)
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   botToken,
		URL:     apiURL,
		Poller:  &telebot.LongPoller{Timeout: 10 * time.Second},
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Telegram bot")
	}
	return NewTelegramWith(bot, channel), nil
}

// NewTelegramWith uses an existing sender.
func NewTelegramWith(bot BotSender, channel int64) *Telegram {
	return &Telegram{bot: bot, channel: channel}
}

// Downloaded announces that entry of feed was saved to path.
func (t *Telegram) Downloaded(feed string, entry models.Entry, path string) error {
	summary := entry.Summary
	if len([]rune(summary)) > maxSummary {
		summary = string([]rune(summary)[:maxSummary]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", feed, entry.Title)
	fmt.Fprintf(&b, "Published %s, saved as %s\n", entry.Published.UTC().Format("2006-01-02 15:04"), filepath.Base(path))
	if summary != "" {
		fmt.Fprintf(&b, "\n%s\n", summary)
	}
	if entry.Link != "" {
		fmt.Fprintf(&b, "\n%s", entry.Link)
	}

	channel := &telebot.Chat{ID: t.channel}
	if _, err := t.bot.Send(channel, b.String(), &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return errors.Wrapf(err, "error sending message for episode %s", entry.Title)
	}
	return nil
}
