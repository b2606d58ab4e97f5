package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// MaxKeyQueryLen longer canonical queries are replaced by their hash
const MaxKeyQueryLen = 256

// Key derives a cache key from an endpoint URL and request parameters.
// Parameters are canonicalized (keys sorted, nested values JSON-encoded with
// sorted map keys) so equal parameter sets always produce the same key. The
// URL stays readable so Invalidate can match on path substrings.
func Key(endpoint string, params map[string]any) string {
	if len(params) == 0 {
		return endpoint
	}
	q := canonicalQuery(params)
	if len(q) > MaxKeyQueryLen {
		q = "h=" + strconv.FormatUint(xxhash.Sum64String(q), 16)
	}
	return endpoint + "?" + q
}

func canonicalQuery(params map[string]any) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	values := url.Values{}
	for _, k := range names {
		values.Set(k, formatParam(params[k]))
	}
	// Encode sorts by key
	return values.Encode()
}

func formatParam(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	default:
		// encoding/json sorts map keys, which keeps nested maps canonical
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
