package courier

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dafnadaf/artist-sub000/internal/common"
)

// QuoteCacheKey derives a canonical cache key for a quote request.
// Semantically identical requests must collapse to the same key regardless of
// field order, numeric formatting or string casing: nested objects are
// rendered with sorted keys, numbers are rounded to integers and strings are
// lower-cased and trimmed before hashing.
func QuoteCacheKey(req QuoteRequest) string {
	payload := map[string]any{
		"from":        locationMap(req.From),
		"to":          locationMap(req.To),
		"weightGrams": req.WeightGrams,
		"lengthCm":    req.LengthCm,
		"widthCm":     req.WidthCm,
		"heightCm":    req.HeightCm,
	}
	return "quote:" + common.Sha256Hex([]byte(canonicalize(payload)))
}

func locationMap(l Location) map[string]any {
	m := map[string]any{}
	if l.CityCode != nil {
		m["cityCode"] = *l.CityCode
	}
	if l.PostalCode != "" {
		m["postalCode"] = l.PostalCode
	}
	if l.City != "" {
		m["city"] = l.City
	}
	return m
}

// canonicalize renders an arbitrary JSON-like value deterministically.
func canonicalize(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(value))
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatInt(int64(math.Round(value)), 10)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return strings.ToLower(strings.TrimSpace(value.String()))
		}
		return strconv.FormatInt(int64(math.Round(f)), 10)
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			rendered := canonicalize(value[k])
			if rendered == "" {
				continue
			}
			parts = append(parts, strings.ToLower(k)+"="+rendered)
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, canonicalize(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
	}
}
