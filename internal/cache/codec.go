package cache

import (
	"encoding/json"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

func encodeCached(ca types.CachedAnalysis) ([]byte, error) {
	return json.Marshal(ca)
}

func decodeCached(raw []byte) (types.CachedAnalysis, bool) {
	var ca types.CachedAnalysis
	if err := json.Unmarshal(raw, &ca); err != nil {
		return types.CachedAnalysis{}, false
	}
	return ca, true
}
