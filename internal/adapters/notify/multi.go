package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

// Multi reparte cada notificación a varios notifiers. Un fallo se registra y no
// impide que el resto reciba el evento; el error combinado se devuelve al final.
type Multi struct {
	notifiers []ports.Notifier
}

// NewMulti ignora los notifiers nil.
func NewMulti(ns ...ports.Notifier) *Multi {
	m := &Multi{}
	for _, n := range ns {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) WhaleDetected(ctx context.Context, t domain.WhaleTrade, w domain.WhaleWallet) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.WhaleDetected(ctx, t, w); err != nil {
			slog.Warn("notify: whale alert failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) CopyEvaluated(ctx context.Context, t domain.WhaleTrade, o domain.CopyOutcome) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.CopyEvaluated(ctx, t, o); err != nil {
			slog.Warn("notify: copy alert failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
