package oracle_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/whalebot/internal/adapters/oracle"
	"github.com/alejandrodnm/whalebot/internal/domain"
)

type cannedVoter struct {
	name   string
	answer string
	err    error
	delay  time.Duration
	prompt chan string
}

func (c *cannedVoter) Name() string { return c.name }

func (c *cannedVoter) Ask(ctx context.Context, prompt string) (string, error) {
	if c.prompt != nil {
		c.prompt <- prompt
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.answer, c.err
}

type markets map[string]domain.Market

func (m markets) MarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	mk, ok := m[slug]
	if !ok {
		return domain.Market{}, errors.New("not found")
	}
	return mk, nil
}

func TestTally(t *testing.T) {
	tests := []struct {
		name      string
		answers   []string
		yes, no   int
		consensus float64
		approved  bool
	}{
		{"all yes", []string{"YES", "yes, strong edge", "Yes."}, 3, 0, 1, true},
		{"mixed", []string{"YES", "NO", "UNCERTAIN", "YES"}, 2, 1, 0.5, false},
		{"yes and no in same answer is no", []string{"YES but maybe NO"}, 0, 1, 0, false},
		{"uncertain counts as response", []string{"UNCERTAIN", "YES", "YES"}, 2, 0, 2.0 / 3.0, false},
		{"empty", nil, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := oracle.Tally(tt.answers, 0.7)
			assert.Equal(t, tt.yes, v.YesVotes)
			assert.Equal(t, tt.no, v.NoVotes)
			assert.Equal(t, len(tt.answers), v.Responses)
			assert.InDelta(t, tt.consensus, v.Consensus, 1e-9)
			assert.Equal(t, tt.approved, v.Approved)
		})
	}
}

func TestTally_ThresholdInclusive(t *testing.T) {
	v := oracle.Tally([]string{"YES", "YES", "YES", "YES", "YES", "YES", "YES", "NO", "NO", "NO"}, 0.7)
	assert.InDelta(t, 0.7, v.Consensus, 1e-9)
	assert.True(t, v.Approved)
}

func TestBuildPrompt(t *testing.T) {
	p := oracle.BuildPrompt("Fed rate cut in March?", "YES")
	assert.Equal(t, "Market: Fed rate cut in March?\n\n"+
		"A trader wants to bet YES on this market.\n\n"+
		"Based on current information, is this a good trade?\n"+
		"Respond with YES if you agree, NO if you disagree, or UNCERTAIN if not enough info.", p)
}

func TestSwarm_Validate(t *testing.T) {
	prompts := make(chan string, 3)
	voters := []oracle.Voter{
		&cannedVoter{name: "a", answer: "YES", prompt: prompts},
		&cannedVoter{name: "b", answer: "yes", prompt: prompts},
		&cannedVoter{name: "c", err: errors.New("boom"), prompt: prompts},
	}
	swarm := oracle.NewSwarm(voters, markets{"fed": {Slug: "fed", Title: "Fed rate cut?"}})

	v, err := swarm.Validate(context.Background(), "fed", "Yes", 0.7)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Responses, "failed voters do not count")
	assert.Equal(t, 2, v.YesVotes)
	assert.InDelta(t, 1.0, v.Consensus, 1e-9)
	assert.True(t, v.Approved)

	for i := 0; i < 3; i++ {
		assert.Contains(t, <-prompts, "Market: Fed rate cut?")
	}
}

func TestSwarm_AllVotersFail(t *testing.T) {
	swarm := oracle.NewSwarm([]oracle.Voter{
		&cannedVoter{name: "slow", answer: "YES", delay: time.Second},
		&cannedVoter{name: "err", err: errors.New("down")},
	}, nil, oracle.WithVoterTimeout(20*time.Millisecond))

	v, err := swarm.Validate(context.Background(), "any", "YES", 0.7)
	require.NoError(t, err)
	assert.Zero(t, v.Responses)
	assert.False(t, v.Approved)
}

func TestSwarm_Errors(t *testing.T) {
	_, err := oracle.NewSwarm(nil, nil).Validate(context.Background(), "m", "YES", 0.7)
	assert.ErrorIs(t, err, oracle.ErrNoVoters)

	swarm := oracle.NewSwarm([]oracle.Voter{&cannedVoter{name: "a", answer: "YES"}}, markets{})
	_, err = swarm.Validate(context.Background(), "missing", "YES", 0.7)
	assert.Error(t, err)
}

func TestChatVoter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "user", req.Messages[1].Role)
			assert.Equal(t, "hello", req.Messages[1].Content)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"YES - momentum"}}]}`))
	}))
	defer srv.Close()

	v, err := oracle.NewChatVoter(oracle.ChatConfig{BaseURL: srv.URL + "/v1/", Model: "gpt-test", APIKey: "sk-test", RatePerSec: 100})
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", v.Name())

	answer, err := v.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "YES - momentum", answer)
}

func TestChatVoter_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	v, err := oracle.NewChatVoter(oracle.ChatConfig{Name: "m", BaseURL: srv.URL, Model: "x", RatePerSec: 100})
	require.NoError(t, err)
	_, err = v.Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = oracle.NewChatVoter(oracle.ChatConfig{Model: "x"})
	assert.Error(t, err)
}
