package oracle

// chat.go: voter sobre cualquier API compatible con OpenAI /chat/completions.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	chatCompletionsPath = "/chat/completions"
	systemPrompt        = "You are a prediction market analyst. Answer with YES, NO or UNCERTAIN followed by one short sentence."
	defaultMaxTokens    = 64
)

// ChatConfig describe un modelo del swarm.
type ChatConfig struct {
	Name        string
	BaseURL     string // e.g. https://api.openai.com/v1
	Model       string
	APIKey      string
	RatePerSec  float64 // 0 → 1 req/s
	Temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatVoter implementa Voter contra un endpoint chat/completions.
type ChatVoter struct {
	cfg     ChatConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewChatVoter crea un voter. BaseURL y Model son obligatorios.
func NewChatVoter(cfg ChatConfig) (*ChatVoter, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("oracle.NewChatVoter: base_url and model are required (voter %q)", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChatVoter{
		cfg:     cfg,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}, nil
}

// Name devuelve el nombre configurado del modelo.
func (v *ChatVoter) Name() string { return v.cfg.Name }

// Ask envía el prompt y devuelve el texto de la primera choice.
func (v *ChatVoter) Ask(ctx context.Context, prompt string) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: v.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: v.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", v.cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d: %s", v.cfg.Name, resp.StatusCode, truncate(string(raw), 200))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%s: decode: %w", v.cfg.Name, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: api error: %s", v.cfg.Name, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", v.cfg.Name)
	}
	return out.Choices[0].Message.Content, nil
}
