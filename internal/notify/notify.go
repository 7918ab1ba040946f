// Package notify announces raffle winners to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// ErrNotConfigured is returned when a channel lacks credentials.
var ErrNotConfigured = errors.New("notifier not configured")

// Winner describes one completed raffle round.
type Winner struct {
	Network   string
	Raffle    string
	Winner    string
	PrizeETH  string
	Players   uint64
	RequestID string
	TxURL     string
}

// Notifier delivers winner announcements.
type Notifier interface {
	NotifyWinner(ctx context.Context, w Winner) error
}

// Nop discards every notification.
type Nop struct{}

// NotifyWinner implements Notifier.
func (Nop) NotifyWinner(context.Context, Winner) error { return nil }

// Telegram posts to a single chat through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token. A nil client uses http.DefaultClient.
func NewTelegram(token string, chatID int64, client *http.Client) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, ErrNotConfigured
	}
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, client)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// NotifyWinner implements Notifier.
func (t *Telegram) NotifyWinner(ctx context.Context, w Winner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatWinner(w))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatWinner renders w as a Markdown message.
func FormatWinner(w Winner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Raffle winner picked* on %s\n", w.Network)
	fmt.Fprintf(&b, "Winner: `%s`\n", w.Winner)
	fmt.Fprintf(&b, "Prize: %s ETH (%d players)\n", w.PrizeETH, w.Players)
	if w.RequestID != "" {
		fmt.Fprintf(&b, "Request: %s\n", w.RequestID)
	}
	fmt.Fprintf(&b, "Raffle: `%s`", w.Raffle)
	if w.TxURL != "" {
		fmt.Fprintf(&b, "\n[view transaction](%s)", w.TxURL)
	}
	return b.String()
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []Notifier

// NewTelegramChats logs the bot in once and posts to every chat in
// chatIDs. A single chat yields a plain *Telegram.
func NewTelegramChats(token string, chatIDs []int64, client *http.Client) (Notifier, error) {
	if len(chatIDs) == 0 {
		return nil, ErrNotConfigured
	}
	first, err := NewTelegram(token, chatIDs[0], client)
	if err != nil {
		return nil, err
	}
	if len(chatIDs) == 1 {
		return first, nil
	}
	m := Multi{first}
	for _, id := range chatIDs[1:] {
		if id == 0 {
			return nil, ErrNotConfigured
		}
		m = append(m, &Telegram{bot: first.bot, chatID: id})
	}
	return m, nil
}

// NotifyWinner implements Notifier.
func (m Multi) NotifyWinner(ctx context.Context, w Winner) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyWinner(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
