package ingestion_engine

import "strings"

// Tokenize splits text into the token units used for chunk windowing and
// cost accounting. Tokens are whitespace-delimited words; the same function
// backs the chunker, the estimator and the usage ledger so the three always
// agree on counts.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// CountTokens is a pure function of text: the number of window tokens.
// Identical input always yields an identical count.
func CountTokens(text string) int {
	return len(Tokenize(text))
}

// CountTokensAll sums CountTokens over a batch.
func CountTokensAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += CountTokens(t)
	}
	return total
}
