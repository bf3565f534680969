package limits

// Published OpenAI limits, one row per tier from free to tier_5.
// -1 marks a dimension the provider does not cap at that tier.
var (
	gpt35Rates = []rate{
		{rpm: 3, rpd: 200, tpm: 40_000},
		{rpm: 3_500, rpd: 10_000, tpm: 60_000},
		{rpm: 3_500, rpd: 0, tpm: 80_000},
		{rpm: 3_500, rpd: 0, tpm: 160_000},
		{rpm: 10_000, rpd: 0, tpm: 1_000_000},
		{rpm: 10_000, rpd: 0, tpm: 2_000_000},
	}

	gpt4Rates = []rate{
		{rpm: -1, rpd: -1, tpm: -1},
		{rpm: 500, rpd: 10_000, tpm: 10_000},
		{rpm: 5_000, rpd: 0, tpm: 40_000},
		{rpm: 5_000, rpd: 0, tpm: 80_000},
		{rpm: 10_000, rpd: 0, tpm: 300_000},
		{rpm: 10_000, rpd: 0, tpm: 300_000},
	}

	gpt4TurboRates = []rate{
		{rpm: -1, rpd: -1, tpm: -1},
		{rpm: 500, rpd: 0, tpm: 300_000},
		{rpm: 5_000, rpd: 0, tpm: 450_000},
		{rpm: 5_000, rpd: 0, tpm: 600_000},
		{rpm: 10_000, rpd: 0, tpm: 800_000},
		{rpm: 10_000, rpd: 0, tpm: 1_500_000},
	}
)

// OpenAI returns the default limit table for OpenAI chat models
func OpenAI() *Table {
	return NewTable(
		newModelLimit("gpt-3.5-turbo", 16_385, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-0125", 16_385, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-0301", 4_096, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-0613", 4_096, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-1106", 16_385, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-16k", 16_385, gpt35Rates),
		newModelLimit("gpt-3.5-turbo-16k-0125", 16_385, gpt35Rates),
		newModelLimit("gpt-4", 8_192, gpt4Rates),
		newModelLimit("gpt-4-0613", 8_192, gpt4Rates),
		newModelLimit("gpt-4-turbo-preview", 128_000, gpt4TurboRates),
		newModelLimit("gpt-4-0125-preview", 128_000, gpt4TurboRates),
		newModelLimit("gpt-4-1106-preview", 128_000, gpt4TurboRates),
	)
}
