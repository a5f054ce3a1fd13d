package cache

import (
	"strings"

	"github.com/roach88/courier/internal/canon"
)

// Key derives the entry name for a request shape. Parameter map order and
// Unicode normalization do not affect the result.
func Key(method, baseURL, path string, params map[string]any) (string, error) {
	shape := map[string]any{
		"method": strings.ToUpper(method),
		"base":   baseURL,
		"path":   path,
	}
	if len(params) > 0 {
		shape["params"] = params
	}
	return canon.Hash(canon.DomainCacheKey, shape)
}
