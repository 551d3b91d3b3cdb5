package postgres

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// vector marshals a float32 slice to and from the pgvector text format,
// e.g. "[0.1,0.2,0.3]".
type vector []float32

func (v vector) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (v *vector) Scan(src interface{}) error {
	var text string
	switch s := src.(type) {
	case string:
		text = s
	case []byte:
		text = string(s)
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into vector", src)
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return fmt.Errorf("malformed vector literal %q", text)
	}
	text = strings.Trim(text, "[]")
	if text == "" {
		*v = vector{}
		return nil
	}

	parts := strings.Split(text, ",")
	out := make(vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("malformed vector element %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}
