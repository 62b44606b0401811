package estimate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signatureVersion is bumped whenever the hashed shape changes, so stale
// cache entries from an older format can never be reused.
const signatureVersion = 2

// SignatureInput is the explicit configuration snapshot an estimate is keyed
// by. Changing any field changes the signature.
type SignatureInput struct {
	Domain             string
	MaxPages           int
	MaxDepth           int
	MinChars           int
	RespectRobots      bool
	ChunkSizeTokens    int
	ChunkOverlapTokens int
	SamplePages        int
}

// BuildSignature returns a deterministic content-addressed key for a
// (domain, crawl config, chunking config) tuple. Pure function: identical
// input always yields the identical signature string.
func BuildSignature(in SignatureInput) string {
	domain := strings.ToLower(strings.TrimSpace(in.Domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")

	payload := fmt.Sprintf("v%d|%s|mp=%d|md=%d|mc=%d|robots=%t|cs=%d|co=%d|sp=%d",
		signatureVersion, domain,
		in.MaxPages, in.MaxDepth, in.MinChars, in.RespectRobots,
		in.ChunkSizeTokens, in.ChunkOverlapTokens, in.SamplePages,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
