package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// BookProvider obtiene el orderbook de un token del CLOB.
type BookProvider interface {
	// FetchOrderBook devuelve el libro del token con bids y asks ya ordenados.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
