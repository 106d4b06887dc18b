package whale

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const stripes = 64

// Registry keeps one profile per wallet address. Updates to the same wallet are
// serialized by a striped lock; the map itself is guarded by mu.
type Registry struct {
	store ports.WalletStorage // nil: memoria únicamente
	now   func() time.Time

	locks [stripes]sync.Mutex

	mu      sync.RWMutex
	wallets map[string]domain.WhaleWallet
}

// NewRegistry loads the persisted wallets. store may be nil.
func NewRegistry(ctx context.Context, store ports.WalletStorage) (*Registry, error) {
	r := &Registry{
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		wallets: make(map[string]domain.WhaleWallet),
	}
	if store == nil {
		return r, nil
	}

	wallets, err := store.LoadWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("whale.NewRegistry: %w", err)
	}
	for _, w := range wallets {
		r.wallets[normalize(w.Address)] = w
	}
	slog.Info("registry: wallets loaded", "count", len(wallets))
	return r, nil
}

// RecordSighting registers one whale trade by wallet. Stats, when non-nil, overwrite
// the stored quality figures.
func (r *Registry) RecordSighting(ctx context.Context, wallet string, stats *domain.WalletStats) (domain.WhaleWallet, error) {
	key := normalize(wallet)
	lock := r.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	now := r.now()
	w, seen := r.Get(key)
	if seen {
		w.TradeCount++
		w.LastSeen = now
	} else {
		w = domain.WhaleWallet{Address: key, FirstSeen: now, LastSeen: now, TradeCount: 1}
	}
	if stats != nil {
		w.WinRate = stats.WinRate
		w.TotalVolume = stats.TotalVolume
		w.ProfitLoss = stats.ProfitLoss
	}

	if r.store != nil {
		if err := r.store.UpsertWallet(ctx, w); err != nil {
			return w, fmt.Errorf("whale.RecordSighting: %w", err)
		}
	}

	r.mu.Lock()
	r.wallets[key] = w
	r.mu.Unlock()
	return w, nil
}

// IsQuality reports whether the stored win rate reaches minWinRate. Unknown wallets are not quality.
func (r *Registry) IsQuality(wallet string, minWinRate float64) bool {
	w, ok := r.Get(wallet)
	return ok && w.WinRate >= minWinRate
}

// Get returns the profile for wallet.
func (r *Registry) Get(wallet string) (domain.WhaleWallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[normalize(wallet)]
	return w, ok
}

// Count returns the number of known wallets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}

// Top returns up to n wallets ordered by win rate, then by trade count.
func (r *Registry) Top(n int) []domain.WhaleWallet {
	r.mu.RLock()
	out := make([]domain.WhaleWallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, w)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		if out[i].TradeCount != out[j].TradeCount {
			return out[i].TradeCount > out[j].TradeCount
		}
		return out[i].Address < out[j].Address
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (r *Registry) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.locks[h.Sum32()%stripes]
}

// Las direcciones de Polygon no distinguen mayúsculas.
func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
