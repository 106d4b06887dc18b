package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// Notifier presenta al usuario las ballenas detectadas y el resultado de cada copia.
type Notifier interface {
	WhaleDetected(ctx context.Context, trade domain.WhaleTrade, wallet domain.WhaleWallet) error
	CopyEvaluated(ctx context.Context, trade domain.WhaleTrade, outcome domain.CopyOutcome) error
}

// StatusReporter muestra el estado periódico del tracker.
type StatusReporter interface {
	ReportStatus(ctx context.Context, s domain.TrackerStatus) error
}
