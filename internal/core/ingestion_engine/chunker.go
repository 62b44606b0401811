package ingestion_engine

import "strings"

// ChunkConfig tunes the chunk windows.
//
// ChunkSizeTokens:    maximum tokens per chunk (e.g., 400).
// ChunkOverlapTokens: tokens shared between consecutive chunks for context
//                     bleed across boundaries (e.g., 40). Must be smaller
//                     than ChunkSizeTokens.
type ChunkConfig struct {
	ChunkSizeTokens    int
	ChunkOverlapTokens int
}

// Piece is one chunk window before attribution and embedding.
//
// Position: stable, zero-based index of the chunk within its source.
// Text:     chunk content.
// Tokens:   exact window token count.
type Piece struct {
	Position int
	Text     string
	Tokens   int
}

// ChunkText splits text into overlapping, token-bounded windows.
// Deterministic: identical text and config always yield the identical
// ordered sequence, which estimate-cache reuse and idempotent re-ingestion
// rely on. Empty or whitespace-only text yields no pieces.
func ChunkText(text string, cfg ChunkConfig) []Piece {
	size := cfg.ChunkSizeTokens
	if size <= 0 {
		size = 400
	}
	overlap := cfg.ChunkOverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := size - overlap
	var pieces []Piece
	for start, pos := 0, 0; start < len(tokens); start, pos = start+step, pos+1 {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		pieces = append(pieces, Piece{
			Position: pos,
			Text:     strings.Join(window, " "),
			Tokens:   len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return pieces
}
