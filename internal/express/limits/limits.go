package limits

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is the parent class of every fatal configuration error.
// Callers can match it with errors.Is to tell setup mistakes apart from
// remote invocation failures.
var ErrConfiguration = errors.New("configuration error")

var (
	ErrUnknownModel = fmt.Errorf("%w: unknown model", ErrConfiguration)
	ErrUnknownTier  = fmt.Errorf("%w: unknown tier", ErrConfiguration)
)

// Tier is a named usage level selecting which Limit applies to a model
type Tier string

const (
	TierFree Tier = "free"
	Tier1    Tier = "tier_1"
	Tier2    Tier = "tier_2"
	Tier3    Tier = "tier_3"
	Tier4    Tier = "tier_4"
	Tier5    Tier = "tier_5"
)

// Tiers lists all tiers in ascending order
var Tiers = []Tier{TierFree, Tier1, Tier2, Tier3, Tier4, Tier5}

// ParseTier accepts "free", "tier_N" or a bare digit N
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '1' && s[0] <= '5' {
		s = "tier_" + s
	}
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Limit is the rate envelope for one model at one tier.
// RPM or TPM <= 0 means the dimension is unlimited. RPD is recorded but
// the scheduler does not enforce it.
type Limit struct {
	RPM        int `json:"rpm"`
	TPM        int `json:"tpm"`
	RPD        int `json:"rpd"`
	ContextLen int `json:"context_len"`
}

func (l Limit) UnlimitedRPM() bool { return l.RPM <= 0 }
func (l Limit) UnlimitedTPM() bool { return l.TPM <= 0 }

// rate is one row of a model family's tier table
type rate struct {
	rpm, tpm, rpd int
}

// ModelLimit holds the per-tier limits and context window of a model
type ModelLimit struct {
	Model      string
	ContextLen int
	Tiers      map[Tier]Limit
}

func newModelLimit(model string, contextLen int, rates []rate) ModelLimit {
	m := ModelLimit{
		Model:      model,
		ContextLen: contextLen,
		Tiers:      make(map[Tier]Limit, len(rates)),
	}
	for i, r := range rates {
		if i >= len(Tiers) {
			break
		}
		m.Tiers[Tiers[i]] = Limit{RPM: r.rpm, TPM: r.tpm, RPD: r.rpd, ContextLen: contextLen}
	}
	return m
}

// Table maps model names to their limits
type Table struct {
	models map[string]ModelLimit
}

// NewTable builds a table from model limits. Later entries win on duplicate names.
func NewTable(models ...ModelLimit) *Table {
	t := &Table{models: make(map[string]ModelLimit, len(models))}
	for _, m := range models {
		t.models[m.Model] = m
	}
	return t
}

// Lookup returns the limit for model at tier
func (t *Table) Lookup(model string, tier Tier) (Limit, error) {
	m, ok := t.models[model]
	if !ok {
		return Limit{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	lim, ok := m.Tiers[tier]
	if !ok {
		return Limit{}, fmt.Errorf("%w: %s for model %s", ErrUnknownTier, tier, model)
	}
	return lim, nil
}

// Models returns the known model names
func (t *Table) Models() []string {
	names := make([]string, 0, len(t.models))
	for name := range t.models {
		names = append(names, name)
	}
	return names
}
