package header

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
)

// FormatValue renders a scanned column value as CSV field text. Numbers keep
// their exact textual representation and NULL becomes the empty string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case duckdb.Decimal:
		return formatDecimal(t.Value, int(t.Scale))
	case *duckdb.Decimal:
		if t == nil {
			return ""
		}
		return formatDecimal(t.Value, int(t.Scale))
	case duckdb.Interval:
		return formatInterval(t)
	case *big.Int:
		if t == nil {
			return ""
		}
		return t.String()
	case *big.Float:
		if t == nil {
			return ""
		}
		return t.Text('f', -1)
	case *big.Rat:
		if t == nil {
			return ""
		}
		if t.IsInt() {
			return t.Num().String()
		}
		return t.FloatString(ratPrecision(t))
	case time.Time:
		return formatTime(t)
	case [16]byte:
		return uuid.UUID(t).String()
	case uuid.UUID:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatDecimal renders unscaled * 10^-scale without going through float64.
func formatDecimal(unscaled *big.Int, scale int) string {
	if unscaled == nil {
		return ""
	}
	digits := new(big.Int).Abs(unscaled).String()
	sign := ""
	if unscaled.Sign() < 0 {
		sign = "-"
	}
	if scale <= 0 {
		return sign + digits
	}
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:]
}

// ratPrecision returns the number of fractional digits needed to print r
// exactly when its denominator is of the form 2^a*5^b, or 20 otherwise.
func ratPrecision(r *big.Rat) int {
	d := new(big.Int).Set(r.Denom())
	two, five := big.NewInt(2), big.NewInt(5)
	var a, b int
	mod := new(big.Int)
	for {
		q, m := new(big.Int).QuoRem(d, two, mod)
		if m.Sign() != 0 {
			break
		}
		d, a = q, a+1
	}
	for {
		q, m := new(big.Int).QuoRem(d, five, mod)
		if m.Sign() != 0 {
			break
		}
		d, b = q, b+1
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return 20
	}
	return max(a, b)
}

func formatTime(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

// formatInterval renders an ISO 8601 duration, e.g. P1M2DT3.5S.
func formatInterval(iv duckdb.Interval) string {
	if iv.Months == 0 && iv.Days == 0 && iv.Micros == 0 {
		return "PT0S"
	}
	var sb strings.Builder
	sb.WriteString("P")
	if iv.Months != 0 {
		sb.WriteString(strconv.FormatInt(int64(iv.Months), 10) + "M")
	}
	if iv.Days != 0 {
		sb.WriteString(strconv.FormatInt(int64(iv.Days), 10) + "D")
	}
	if iv.Micros != 0 {
		sb.WriteString("T" + formatDecimal(big.NewInt(iv.Micros), 6))
		s := sb.String()
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
		return s + "S"
	}
	return sb.String()
}
