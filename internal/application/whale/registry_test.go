package whale_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alejandrodnm/whalebot/internal/adapters/polymarket"
	"github.com/alejandrodnm/whalebot/internal/adapters/storage"
	"github.com/alejandrodnm/whalebot/internal/application/whale"
	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstSightingAndRepeat(t *testing.T) {
	ctx := context.Background()
	r, err := whale.NewRegistry(ctx, nil)
	require.NoError(t, err)

	w, err := r.RecordSighting(ctx, "0xABC", &domain.WalletStats{WinRate: 72, TotalVolume: 1e6, ProfitLoss: 3e4})
	require.NoError(t, err)
	assert.Equal(t, 1, w.TradeCount)
	assert.Equal(t, w.FirstSeen, w.LastSeen)
	assert.InDelta(t, 72, w.WinRate, 1e-9)

	// sin stats no se pisan los valores previos
	w, err = r.RecordSighting(ctx, "0xabc", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, w.TradeCount)
	assert.InDelta(t, 72, w.WinRate, 1e-9)

	w, err = r.RecordSighting(ctx, "0xabc", &domain.WalletStats{WinRate: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, w.TradeCount)
	assert.InDelta(t, 50, w.WinRate, 1e-9)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_EmptyStatsLookupKeepsQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	client := polymarket.NewClient(srv.URL, srv.URL, polymarket.WithStatsBase(srv.URL))

	ctx := context.Background()
	r, err := whale.NewRegistry(ctx, nil)
	require.NoError(t, err)

	_, err = r.RecordSighting(ctx, "0xwhale", &domain.WalletStats{WinRate: 72, TotalVolume: 1e6, ProfitLoss: 5e4})
	require.NoError(t, err)

	stats, err := client.TraderStats(ctx, "0xwhale")
	require.NoError(t, err)
	w, err := r.RecordSighting(ctx, "0xwhale", stats)
	require.NoError(t, err)

	assert.Equal(t, 2, w.TradeCount)
	assert.InDelta(t, 72, w.WinRate, 1e-9)
	assert.InDelta(t, 1e6, w.TotalVolume, 1e-9)
	assert.InDelta(t, 5e4, w.ProfitLoss, 1e-9)
	assert.True(t, r.IsQuality("0xwhale", 60))
}

func TestRegistry_IsQuality(t *testing.T) {
	ctx := context.Background()
	r, err := whale.NewRegistry(ctx, nil)
	require.NoError(t, err)

	_, err = r.RecordSighting(ctx, "0xgood", &domain.WalletStats{WinRate: 60})
	require.NoError(t, err)
	_, err = r.RecordSighting(ctx, "0xbad", &domain.WalletStats{WinRate: 45})
	require.NoError(t, err)

	assert.True(t, r.IsQuality("0xgood", 60))
	assert.False(t, r.IsQuality("0xbad", 60))
	assert.False(t, r.IsQuality("0xunknown", 0))
}

func TestRegistry_ConcurrentSightingsSameWallet(t *testing.T) {
	ctx := context.Background()
	r, err := whale.NewRegistry(ctx, nil)
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RecordSighting(ctx, "0xsame", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, ok := r.Get("0xsame")
	require.True(t, ok)
	assert.Equal(t, n, w.TradeCount)
}

func TestRegistry_Top(t *testing.T) {
	ctx := context.Background()
	r, err := whale.NewRegistry(ctx, nil)
	require.NoError(t, err)

	for i, rate := range []float64{40, 80, 65} {
		_, err := r.RecordSighting(ctx, fmt.Sprintf("0x%d", i), &domain.WalletStats{WinRate: rate})
		require.NoError(t, err)
	}

	top := r.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "0x1", top[0].Address)
	assert.Equal(t, "0x2", top[1].Address)
}

func TestRegistry_ReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	r, err := whale.NewRegistry(ctx, db)
	require.NoError(t, err)
	_, err = r.RecordSighting(ctx, "0xabc", &domain.WalletStats{WinRate: 70})
	require.NoError(t, err)
	_, err = r.RecordSighting(ctx, "0xabc", nil)
	require.NoError(t, err)

	reloaded, err := whale.NewRegistry(ctx, db)
	require.NoError(t, err)
	w, ok := reloaded.Get("0xABC")
	require.True(t, ok)
	assert.Equal(t, 2, w.TradeCount)
	assert.True(t, reloaded.IsQuality("0xabc", 70))
}
