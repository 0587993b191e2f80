// Package model holds the attractor data model: the typed AttributeValue
// union, the untyped DOT AST, and the typed PipelineGraph the engine
// actually walks.
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tags which arm of AttributeValue is populated.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// AttributeValue is a tagged union over the DOT attribute value types:
// string, integer, float, boolean, duration.
type AttributeValue struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	d    time.Duration
}

func StringValue(s string) AttributeValue   { return AttributeValue{kind: KindString, str: s} }
func IntegerValue(i int64) AttributeValue   { return AttributeValue{kind: KindInteger, i: i} }
func FloatValue(f float64) AttributeValue   { return AttributeValue{kind: KindFloat, f: f} }
func BooleanValue(b bool) AttributeValue    { return AttributeValue{kind: KindBoolean, b: b} }
func DurationValue(d time.Duration) AttributeValue {
	return AttributeValue{kind: KindDuration, d: d}
}

func (v AttributeValue) Kind() Kind { return v.kind }

func (v AttributeValue) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v AttributeValue) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

func (v AttributeValue) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v AttributeValue) AsBoolean() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.b, true
}

func (v AttributeValue) AsDuration() (time.Duration, bool) {
	if v.kind != KindDuration {
		return 0, false
	}
	return v.d, true
}

// Coerce returns the string form of v for String/Integer/Boolean/Float
// kinds, used by typed-field extraction and ${var} prompt expansion.
// Durations are not coercible; ok is false for them.
func (v AttributeValue) Coerce() (s string, ok bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindInteger:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBoolean:
		return strconv.FormatBool(v.b), true
	case KindDuration:
		return "", false
	default:
		return "", false
	}
}

// String renders v for diagnostics / condition resolution; unlike Coerce it
// never fails, rendering durations as Go's canonical duration string.
func (v AttributeValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDuration:
		return v.d.String()
	default:
		return ""
	}
}

var (
	durationRe = regexp.MustCompile(`^(\d+)(ms|s|m|h|d)$`)
	integerRe  = regexp.MustCompile(`^-?\d+$`)
	floatRe    = regexp.MustCompile(`^-?\d+\.\d+([eE][-+]?\d+)?$|^-?\d+[eE][-+]?\d+$`)
)

// ParseAttributeValue types a raw attribute token. Precedence: quoted
// string, boolean literal, duration, integer, float, falling back to a
// bareword string. wasQuoted must be true only when the
// DOT source used a quoted string literal for this token; in that case the
// value is always a String, never coerced further.
func ParseAttributeValue(raw string, wasQuoted bool) AttributeValue {
	if wasQuoted {
		return StringValue(raw)
	}
	trimmed := strings.TrimSpace(raw)

	switch trimmed {
	case "true":
		return BooleanValue(true)
	case "false":
		return BooleanValue(false)
	}

	if m := durationRe.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			if d, ok := durationFromUnit(n, m[2]); ok {
				return DurationValue(d)
			}
		}
	}

	if integerRe.MatchString(trimmed) {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return IntegerValue(n)
		}
	}

	if floatRe.MatchString(trimmed) {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return FloatValue(f)
		}
	}

	return StringValue(raw)
}

func durationFromUnit(n int64, unit string) (time.Duration, bool) {
	switch unit {
	case "ms":
		return time.Duration(n) * time.Millisecond, true
	case "s":
		return time.Duration(n) * time.Second, true
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ParseDuration parses a standalone duration string (digits + suffix),
// returning an error rather than falling back to a string — used when a
// typed field (e.g. a node's timeout) must be a duration.
func ParseDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	m := durationRe.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: expected digits followed by ms|s|m|h|d", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d, ok := durationFromUnit(n, m[2])
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit", raw)
	}
	return d, nil
}
