package domain

import (
	"strings"
	"time"
)

// Market es la metadata de un mercado de Polymarket obtenida de Gamma.
// Se usa para construir el prompt del oráculo y para resolver tokens.
type Market struct {
	Slug      string
	Title     string // título del evento
	Question  string
	EndDate   time.Time
	Volume24h float64
	Tokens    []Token
	Active    bool
	Closed    bool
}

// Token es un outcome negociable del mercado.
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No" | nombre del candidato
	Price   float64 // último precio conocido
}

// TokenByOutcome busca el token de un outcome, sin distinguir mayúsculas.
func (m Market) TokenByOutcome(outcome string) (Token, bool) {
	for _, t := range m.Tokens {
		if strings.EqualFold(t.Outcome, outcome) {
			return t, true
		}
	}
	return Token{}, false
}

// HoursToResolution devuelve las horas hasta que el mercado se resuelve.
// Devuelve 0 si EndDate no está definido o ya pasó.
func (m Market) HoursToResolution() float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := time.Until(m.EndDate).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Prompt es el texto descriptivo del mercado: la pregunta si existe, si no el título.
func (m Market) Prompt() string {
	if m.Question != "" {
		return m.Question
	}
	if m.Title != "" {
		return m.Title
	}
	return m.Slug
}
