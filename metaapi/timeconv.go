package metaapi

import (
	"strings"
	"time"
)

// maxNormalizeDepth bounds the recursion of NormalizeTimes. Decoded JSON is
// always a tree, but a hand-built payload could alias containers.
const maxNormalizeDepth = 64

// NormalizeTimes walks a decoded JSON value and replaces ISO-8601 strings held
// in time-named fields with time.Time values. A field is time-named when its
// name ends in "time" or "Time", except broker-local duplicates (brokerTime,
// BrokerTime) which remain formatted strings. Maps and slices are visited
// exactly once each; the transformation is idempotent.
func NormalizeTimes(v interface{}) interface{} {
	return normalizeTimes(v, maxNormalizeDepth)
}

func normalizeTimes(v interface{}, depth int) interface{} {
	if depth <= 0 {
		return v
	}
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if s, ok := child.(string); ok && isTimeField(k) {
				if t, err := parseISOTime(s); err == nil {
					val[k] = t
				}
				continue
			}
			val[k] = normalizeTimes(child, depth-1)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = normalizeTimes(child, depth-1)
		}
		return val
	default:
		return v
	}
}

func isTimeField(name string) bool {
	if name == "brokerTime" || name == "BrokerTime" {
		return false
	}
	return strings.HasSuffix(name, "time") || strings.HasSuffix(name, "Time")
}

func parseISOTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
