package dedup

import "strings"

// SimHash calculates a similarity hash for fuzzy same-event matching.
// Uses a word trigram approach over normalized text.
func SimHash(text string) uint64 {
	// Normalize text
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		return ' '
	}, text)

	// Generate 3-grams and hash them
	var hash uint64
	words := strings.Fields(text)

	for i := 0; i < len(words)-2; i++ {
		trigram := words[i] + " " + words[i+1] + " " + words[i+2]
		// Simple hash function
		var h uint64 = 5381
		for _, c := range trigram {
			h = ((h << 5) + h) + uint64(c)
		}
		// Set bit based on hash
		hash |= (1 << (h % 64))
	}

	return hash
}

// SimilarityScore calculates how similar two SimHash values are.
// Returns 0.0 to 1.0 (1.0 = identical).
func SimilarityScore(hash1, hash2 uint64) float64 {
	// Count matching bits (Hamming distance)
	xor := hash1 ^ hash2
	diff := 0
	for xor != 0 {
		diff++
		xor &= xor - 1
	}
	// 64 bits total, so similarity is (64 - diff) / 64
	return float64(64-diff) / 64.0
}
