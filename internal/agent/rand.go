package agent

import "math/rand"

// agentRng is the package-level random source used by the baseline agents.
// When nil, the functions below delegate to the global math/rand default.
// Use SeedRng to set a deterministic source for reproducible games.
var agentRng *rand.Rand

// SeedRng sets a deterministic random source for reproducible agent behavior.
func SeedRng(seed int64) {
	agentRng = rand.New(rand.NewSource(seed))
}

// ResetRng reverts to the default (non-deterministic) global random source.
func ResetRng() {
	agentRng = nil
}

func rngIntn(n int) int {
	if agentRng != nil {
		return agentRng.Intn(n)
	}
	return rand.Intn(n)
}
