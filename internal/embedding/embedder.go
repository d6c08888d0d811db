package embedding

import "strings"

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "all-minilm"

var knownDimensions = map[string]int{
	"all-minilm":                             384,
	"all-minilm-l6-v2":                       384,
	"sentence-transformers/all-minilm-l6-v2": 384,
	"nomic-embed-text":                       768,
	"mxbai-embed-large":                      1024,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
}

// DimensionsFor returns the output size of a known embedding model.
// Ollama tags such as "all-minilm:latest" resolve to their base model.
func DimensionsFor(model string) (int, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if d, ok := knownDimensions[m]; ok {
		return d, true
	}
	if base, _, found := strings.Cut(m, ":"); found {
		d, ok := knownDimensions[base]
		return d, ok
	}
	return 0, false
}
