package limits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Lookup(t *testing.T) {
	table := OpenAI()

	lim, err := table.Lookup("gpt-3.5-turbo", Tier4)
	require.NoError(t, err)
	assert.Equal(t, Limit{RPM: 10_000, TPM: 1_000_000, RPD: 0, ContextLen: 16_385}, lim)

	lim, err = table.Lookup("gpt-4", TierFree)
	require.NoError(t, err)
	assert.True(t, lim.UnlimitedRPM())
	assert.True(t, lim.UnlimitedTPM())
	assert.Equal(t, 8_192, lim.ContextLen)
}

func TestOpenAI_LookupUnknownModel(t *testing.T) {
	_, err := OpenAI().Lookup("davinci-002", Tier1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestOpenAI_LookupUnknownTier(t *testing.T) {
	_, err := OpenAI().Lookup("gpt-4", Tier("tier_9"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOpenAI_EveryModelHasEveryTier(t *testing.T) {
	table := OpenAI()
	assert.Len(t, table.Models(), 12)
	for _, model := range table.Models() {
		for _, tier := range Tiers {
			lim, err := table.Lookup(model, tier)
			require.NoError(t, err, "%s/%s", model, tier)
			assert.Positive(t, lim.ContextLen)
		}
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{in: "free", want: TierFree},
		{in: "tier_3", want: Tier3},
		{in: " TIER_2 ", want: Tier2},
		{in: "5", want: Tier5},
		{in: "0", wantErr: true},
		{in: "tier_6", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
