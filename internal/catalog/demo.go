package catalog

import "github.com/alnlabs/gmstation/internal/models"

// demoTokens returns the embedded minimal dataset used when every configured
// token source fails. Enough to run a demonstration game, nothing more.
func demoTokens() map[string]models.Token {
	tokens := []models.Token{
		{ID: "demo001", ValueRating: 1, MemoryType: "Technical", GroupLabel: "Demo Cache (x2)"},
		{ID: "demo002", ValueRating: 2, MemoryType: "Technical", GroupLabel: "Demo Cache (x2)"},
		{ID: "demo003", ValueRating: 3, MemoryType: "Personal", GroupLabel: "Demo Cache (x2)"},
		{ID: "demo004", ValueRating: 4, MemoryType: "Personal"},
		{ID: "demo005", ValueRating: 5, MemoryType: "Business"},
	}

	out := make(map[string]models.Token, len(tokens))
	for _, token := range tokens {
		out[token.ID] = token
	}
	return out
}
