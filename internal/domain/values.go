package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/spf13/cast"
)

// AsFloat64 converts a scanned column value to float64. NULL and
// unparsable values report ok=false.
func AsFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case []byte:
		v = string(x)
	case *big.Int:
		if x == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

// AsInt64 converts a scanned column value to int64, truncating fractions.
func AsInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case []byte:
		v = string(x)
	case float64, float32:
		return truncate(v)
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return n, true
	}
	return truncate(v)
}

func truncate(v any) (int64, bool) {
	f, ok := AsFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// AsString renders a scanned column value as text. NULL reports ok=false.
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02"), true
		}
		return x.Format("2006-01-02 15:04:05"), true
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s, true
	}
	return fmt.Sprint(v), true
}
