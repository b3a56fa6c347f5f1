// pkg/converter/values.go
package converter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Float converts a raw cell to a finite float64, or nil
func (c *Converter) Float(raw string) *float64 {
	if c.IsMissing(raw) {
		return nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Int converts a raw cell to an int64, truncating fractional input
// ("12.0" -> 12). Values outside the int64 range are treated as missing.
func (c *Converter) Int(raw string) *int64 {
	f := c.Float(raw)
	if f == nil {
		return nil
	}

	t := math.Trunc(*f)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return nil
	}
	i := int64(t)
	return &i
}

// Text trims a raw cell and returns nil for missing values
func (c *Converter) Text(raw string) *string {
	if c.IsMissing(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	return &s
}

// Website normalizes a URL: trimmed, and prefixed with the default scheme
// when it carries neither http:// nor https://
func (c *Converter) Website(raw string) *string {
	text := c.Text(raw)
	if text == nil {
		return nil
	}

	url := *text
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		url = c.config.DefaultScheme + url
	}
	return &url
}

// FormatNumber renders an aggregated value back into a cell
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString converts a driver value to its cell representation
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprintf("%v", val)
	case float32:
		return FormatNumber(float64(val))
	case float64:
		return FormatNumber(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		// Complex types from the warehouse come back as JSON
		jsonBytes, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(jsonBytes)
	}
}
