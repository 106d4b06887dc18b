// Package oracle implements the consensus oracle: several language models are
// asked the same question about a trade and their answers are counted.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const (
	defaultVoterTimeout = 30 * time.Second
	unknownMarket       = "Unknown"
)

// ErrNoVoters se devuelve cuando el swarm no tiene modelos configurados.
var ErrNoVoters = errors.New("oracle: no voters configured")

// Voter es un modelo que responde a un prompt con texto libre.
type Voter interface {
	Name() string
	Ask(ctx context.Context, prompt string) (string, error)
}

// MarketLookup resuelve el título de un mercado a partir de su slug.
type MarketLookup interface {
	MarketBySlug(ctx context.Context, slug string) (domain.Market, error)
}

// Swarm implementa ports.ConsensusOracle preguntando a todos los voters en paralelo.
type Swarm struct {
	voters  []Voter
	markets MarketLookup
	timeout time.Duration
}

// SwarmOption configura un Swarm.
type SwarmOption func(*Swarm)

// WithVoterTimeout limita cuánto espera el swarm a cada modelo.
func WithVoterTimeout(d time.Duration) SwarmOption {
	return func(s *Swarm) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSwarm crea un Swarm. markets puede ser nil: el prompt usa entonces el slug.
func NewSwarm(voters []Voter, markets MarketLookup, opts ...SwarmOption) *Swarm {
	s := &Swarm{voters: voters, markets: markets, timeout: defaultVoterTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Size devuelve el número de voters.
func (s *Swarm) Size() int { return len(s.voters) }

// Validate pregunta al swarm si apostar side en el mercado es buena idea.
// Un voter que falla no cuenta como respuesta.
func (s *Swarm) Validate(ctx context.Context, marketSlug, side string, threshold float64) (domain.Verdict, error) {
	if len(s.voters) == 0 {
		return domain.Verdict{}, ErrNoVoters
	}

	title, err := s.marketTitle(ctx, marketSlug)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("oracle.Validate: %w", err)
	}
	prompt := BuildPrompt(title, side)

	answers := s.ask(ctx, prompt)
	v := Tally(answers, threshold)

	slog.Info("oracle: consensus",
		"market", marketSlug,
		"side", side,
		"yes", v.YesVotes,
		"no", v.NoVotes,
		"responses", v.Responses,
		"consensus", fmt.Sprintf("%.1f%%", v.Consensus*100),
		"approved", v.Approved,
	)
	return v, nil
}

func (s *Swarm) marketTitle(ctx context.Context, slug string) (string, error) {
	if s.markets == nil {
		return slug, nil
	}
	m, err := s.markets.MarketBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("market %s: %w", slug, err)
	}
	if m.Title != "" {
		return m.Title, nil
	}
	if m.Question != "" {
		return m.Question, nil
	}
	return unknownMarket, nil
}

// ask lanza una goroutine por voter y devuelve las respuestas exitosas.
func (s *Swarm) ask(ctx context.Context, prompt string) []string {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		answers = make([]string, 0, len(s.voters))
	)

	for _, v := range s.voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			start := time.Now()
			answer, err := v.Ask(vctx, prompt)
			if err != nil {
				slog.Warn("oracle: voter failed", "voter", v.Name(), "err", err)
				return
			}
			slog.Debug("oracle: voter answered", "voter", v.Name(), "elapsed", time.Since(start), "answer", truncate(answer, 80))

			mu.Lock()
			answers = append(answers, answer)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return answers
}

// BuildPrompt arma la pregunta que se envía a cada modelo.
func BuildPrompt(marketTitle, side string) string {
	return fmt.Sprintf("Market: %s\n\n"+
		"A trader wants to bet %s on this market.\n\n"+
		"Based on current information, is this a good trade?\n"+
		"Respond with YES if you agree, NO if you disagree, or UNCERTAIN if not enough info.",
		marketTitle, side)
}

// Tally cuenta los votos. Una respuesta es YES si contiene "YES" y no "NO";
// es NO si contiene "NO"; cualquier otra cosa es incierta pero cuenta como respuesta.
func Tally(answers []string, threshold float64) domain.Verdict {
	var v domain.Verdict
	for _, a := range answers {
		up := strings.ToUpper(a)
		v.Responses++
		switch {
		case strings.Contains(up, "YES") && !strings.Contains(up, "NO"):
			v.YesVotes++
		case strings.Contains(up, "NO"):
			v.NoVotes++
		}
	}
	if v.Responses > 0 {
		v.Consensus = float64(v.YesVotes) / float64(v.Responses)
		v.Approved = v.Consensus >= threshold
	}
	return v
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
