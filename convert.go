package mongoferry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Convert coerces a native source value into its BSON-level representation
// for the given target type. It is total and deterministic: it never
// returns an error, and any value that cannot be represented becomes nil.
// Migrations favor completion over per-field strictness; operators are
// expected to review a preview sample before running (see
// Migrator.Preview), or opt into strict mode to surface lossy fields.
//
// Per-type rules:
//
//   - nil input is nil output for every target type.
//   - int32/int64 cast numeric inputs and parse integer strings; anything
//     else is nil, as are values outside the target's range.
//   - float and decimal share one rule: a Decimal128 when the input
//     serializes cleanly to a decimal string, a float64 otherwise;
//     non-numeric input is nil.
//   - bool coerces numbers via zero/non-zero and matches strings
//     case-insensitively against "true", "1", "yes" (anything else false).
//   - date/datetime pass timestamps through (normalized to UTC), take
//     numeric inputs as Unix epoch seconds, and parse strings with a
//     general date parser; unparsable input is nil.
//   - array passes sequences through, JSON-parses strings expecting an
//     array, and wraps any other value in a single-element sequence.
//   - dict passes mappings through, JSON-parses strings expecting an
//     object, and wraps any other value as {"value": v}.
//   - objectid builds an ObjectID from the string form of the input and
//     GENERATES A FRESH ID when that fails. This fabricates identity
//     instead of failing; never route a field through objectid when its
//     value must survive as a stable cross-system key unless every value
//     is a valid 24-character hex id.
//   - string takes the string form of any input.
//   - null and unrecognized target types are always nil.
func Convert(v any, t TargetType) any {
	out, _ := convertValue(v, t)
	return out
}

// ConvertStrict behaves like Convert but reports an error whenever a
// non-null input could not be represented and would have been silently
// nulled. ObjectID fabrication is not an error here: it produces a value,
// not a null.
func ConvertStrict(v any, t TargetType) (any, error) {
	out, ok := convertValue(v, t)
	if !ok {
		return nil, fmt.Errorf("cannot represent %T value as %s", v, t)
	}
	return out, nil
}

func convertValue(v any, t TargetType) (any, bool) {
	if v == nil {
		return nil, true
	}
	// Drivers report most textual columns as []byte; fold to string once so
	// every rule below sees the same shape.
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case TypeInt32:
		n, ok := toInt64(v)
		if !ok || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, false
		}
		return int32(n), true
	case TypeInt64:
		n, ok := toInt64(v)
		if !ok {
			return nil, false
		}
		return n, true
	case TypeFloat, TypeDecimal:
		return toDecimal(v)
	case TypeBool:
		return toBool(v), true
	case TypeDate, TypeDateTime:
		return toTime(v)
	case TypeArray:
		return toArray(v), true
	case TypeDict:
		return toDict(v), true
	case TypeObjectID:
		return toObjectID(v), true
	case TypeString:
		return stringify(v), true
	case TypeNull:
		// Nulling is the requested conversion, not a lossy fallback.
		return nil, true
	default:
		return nil, false
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint32:
		return int64(x), true
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toDecimal prefers an exact Decimal128 and falls back to float64 when the
// input has no clean decimal string form.
func toDecimal(v any) (any, bool) {
	if s, ok := decimalString(v); ok {
		if d, err := primitive.ParseDecimal128(s); err == nil {
			return d, true
		}
	}
	f, ok := toFloat64(v)
	if !ok {
		return nil, false
	}
	return f, true
}

func decimalString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case int64:
		return decimal.NewFromInt(x).String(), true
	case int:
		return decimal.NewFromInt(int64(x)).String(), true
	case int32:
		return decimal.NewFromInt32(x).String(), true
	case uint64:
		return decimal.NewFromUint64(x).String(), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return decimal.NewFromFloat(x).String(), true
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return "", false
		}
		return decimal.NewFromFloat32(x).String(), true
	}
	return "", false
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case int32:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	}
	switch strings.ToLower(strings.TrimSpace(stringify(v))) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func toTime(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case primitive.DateTime:
		return x.Time().UTC(), true
	case int64:
		return time.Unix(x, 0).UTC(), true
	case int:
		return time.Unix(int64(x), 0).UTC(), true
	case float64:
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(x), time.UTC)
		if err != nil {
			return nil, false
		}
		return t.UTC(), true
	}
	return nil, false
}

func toArray(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case primitive.A:
		return []any(x)
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(x), &arr); err == nil && arr != nil {
			return arr
		}
		return []any{x}
	}
	return []any{v}
}

func toDict(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case primitive.M:
		return map[string]any(x)
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(x), &obj); err == nil && obj != nil {
			return obj
		}
		return map[string]any{"value": x}
	}
	return map[string]any{"value": v}
}

// toObjectID never fails: invalid input yields a freshly generated id.
func toObjectID(v any) primitive.ObjectID {
	if id, ok := v.(primitive.ObjectID); ok {
		return id
	}
	if id, err := primitive.ObjectIDFromHex(strings.TrimSpace(stringify(v))); err == nil {
		return id
	}
	return primitive.NewObjectID()
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// convertRow maps one source row through the resolved field mappings.
// Columns absent from the row convert as nil. In strict mode the first
// lossy field conversion fails the whole document.
func convertRow(row Row, mapping []FieldMapping, strict bool) (Document, error) {
	doc := make(Document, len(mapping))
	for _, fm := range mapping {
		v := row[fm.SourceColumn]
		if strict {
			out, err := ConvertStrict(v, fm.TargetType)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fm.TargetName, err)
			}
			doc[fm.TargetName] = out
			continue
		}
		doc[fm.TargetName] = Convert(v, fm.TargetType)
	}
	return doc, nil
}
