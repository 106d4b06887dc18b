package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{}, r.err
}

func TestTelegram_OnlyQualityWhalesAndExecutedCopies(t *testing.T) {
	rec := &recordingSender{}
	tg := newTelegramWithSender(rec, 42, 60)
	ctx := context.Background()

	wt := domain.WhaleTrade{MarketTitle: "Will_X happen?", Wallet: "0xabc", Side: domain.SideBuy, Outcome: "Yes", USDValue: 25_000}

	require.NoError(t, tg.WhaleDetected(ctx, wt, domain.WhaleWallet{WinRate: 40}))
	require.NoError(t, tg.CopyEvaluated(ctx, wt, domain.CopyOutcome{Reason: domain.ReasonAIRejected}))
	assert.Empty(t, rec.sent)

	require.NoError(t, tg.WhaleDetected(ctx, wt, domain.WhaleWallet{WinRate: 75}))
	require.NoError(t, tg.CopyEvaluated(ctx, wt, domain.CopyOutcome{Executed: true, SizeUSD: 100, OrderID: "PAPER_1"}))
	require.Len(t, rec.sent, 2)

	assert.Equal(t, int64(42), rec.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, rec.sent[0].ParseMode)
	assert.Contains(t, rec.sent[0].Text, "$25.00K")
	assert.Contains(t, rec.sent[0].Text, `Will\_X happen?`)
	assert.Contains(t, rec.sent[1].Text, "PAPER_1")
}

func TestTelegram_SendError(t *testing.T) {
	tg := newTelegramWithSender(&recordingSender{err: errors.New("429")}, 1, 0)
	err := tg.CopyEvaluated(context.Background(), domain.WhaleTrade{}, domain.CopyOutcome{Executed: true})
	assert.Error(t, err)
}
