package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// messageSender es el subconjunto de *tgbotapi.BotAPI que usamos.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram envía alertas de ballenas de calidad y copias ejecutadas a un chat.
type Telegram struct {
	api        messageSender
	chatID     int64
	minWinRate float64
}

// NewTelegram conecta con la Bot API. Falla si el token no es válido.
func NewTelegram(token string, chatID int64, minWinRate float64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, minWinRate: minWinRate}, nil
}

func newTelegramWithSender(api messageSender, chatID int64, minWinRate float64) *Telegram {
	return &Telegram{api: api, chatID: chatID, minWinRate: minWinRate}
}

// WhaleDetected solo avisa de ballenas con win rate suficiente.
func (t *Telegram) WhaleDetected(_ context.Context, wt domain.WhaleTrade, w domain.WhaleWallet) error {
	if w.WinRate < t.minWinRate || w.WinRate <= 0 {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🐋 *Whale trade* %s\n", FormatUSD(wt.USDValue))
	fmt.Fprintf(&sb, "%s\n", escapeMarkdown(truncate(marketName(wt), 80)))
	fmt.Fprintf(&sb, "%s %s @ %.3f\n", wt.Side, escapeMarkdown(wt.Outcome), wt.Price)
	fmt.Fprintf(&sb, "Wallet `%s` | win rate %.1f%%", shortWallet(wt.Wallet), w.WinRate)
	return t.send(sb.String())
}

// CopyEvaluated solo avisa de copias ejecutadas.
func (t *Telegram) CopyEvaluated(_ context.Context, wt domain.WhaleTrade, o domain.CopyOutcome) error {
	if !o.Executed {
		return nil
	}
	text := fmt.Sprintf("✅ *Copied* %s on %s\nwhale %s → ours %s | AI %.0f%%\norder `%s`",
		wt.Side, escapeMarkdown(truncate(marketName(wt), 60)),
		FormatUSD(wt.USDValue), FormatUSD(o.SizeUSD), o.Consensus*100, o.OrderID)
	return t.send(text)
}

func (t *Telegram) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("notify.Telegram: send: %w", err)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
