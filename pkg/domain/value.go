package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValueType names one arm of the Value sum type. The strings are the wire tags.
type ValueType string

// Value type tags.
const (
	TypeText       ValueType = "text"
	TypeNumber     ValueType = "number"
	TypeDate       ValueType = "date"
	TypeCheckmark  ValueType = "checkmark"
	TypeURL        ValueType = "url"
	TypeItem       ValueType = "item"
	TypeConnection ValueType = "connection"
)

// Value is the closed set of things an entry can hold. The unexported marker
// keeps the set closed to this package.
type Value interface {
	Type() ValueType
	String() string
	isValue()
}

// Text is a plain string value.
type Text string

// Number is an exact decimal value.
type Number struct {
	Decimal decimal.Decimal
}

// Date is a point in time value.
type Date struct {
	Time time.Time
}

// Checkmark is a boolean value.
type Checkmark bool

// URL is a link value.
type URL string

// ItemRef points at another item.
type ItemRef struct {
	Item uuid.UUID
}

// Connection links two items, each under its own attribute.
type Connection struct {
	Items      [2]uuid.UUID
	Attributes [2]uuid.UUID
}

func (Text) Type() ValueType       { return TypeText }
func (Number) Type() ValueType     { return TypeNumber }
func (Date) Type() ValueType       { return TypeDate }
func (Checkmark) Type() ValueType  { return TypeCheckmark }
func (URL) Type() ValueType        { return TypeURL }
func (ItemRef) Type() ValueType    { return TypeItem }
func (Connection) Type() ValueType { return TypeConnection }

func (v Text) String() string      { return string(v) }
func (v Number) String() string    { return v.Decimal.String() }
func (v Date) String() string      { return v.Time.UTC().Format(time.RFC3339) }
func (v Checkmark) String() string { return strconv.FormatBool(bool(v)) }
func (v URL) String() string       { return string(v) }
func (v ItemRef) String() string   { return v.Item.String() }
func (v Connection) String() string {
	return fmt.Sprintf("%s/%s<->%s/%s", v.Items[0], v.Attributes[0], v.Items[1], v.Attributes[1])
}

func (Text) isValue()       {}
func (Number) isValue()     {}
func (Date) isValue()       {}
func (Checkmark) isValue()  {}
func (URL) isValue()        {}
func (ItemRef) isValue()    {}
func (Connection) isValue() {}

// NewNumber builds a Number from an int64.
func NewNumber(n int64) Number { return Number{Decimal: decimal.NewFromInt(n)} }

// ParseNumber parses a decimal literal.
func ParseNumber(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("parse number %q: %w", s, err)
	}
	return Number{Decimal: d}, nil
}

// NewDate truncates t to millisecond precision in UTC, the resolution the
// wire formats store.
func NewDate(t time.Time) Date {
	return Date{Time: t.UTC().Truncate(time.Millisecond)}
}

// Canonical returns v as it reads back after a save. Only dates change.
func Canonical(v Value) Value {
	if d, ok := v.(Date); ok {
		return NewDate(d.Time)
	}
	return v
}

// dateLayouts are tried in order when parsing a date literal.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "Jan 2, 2006"}

// ParseDate accepts RFC 3339, a bare calendar date or integer milliseconds
// since the Unix epoch.
func ParseDate(s string) (Date, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NewDate(time.UnixMilli(ms)), nil
	}
	return Date{}, fmt.Errorf("parse date %q: unrecognised layout", s)
}

// Other returns the endpoint opposite item. ok is false when item is not one
// of the connection's endpoints.
func (v Connection) Other(item uuid.UUID) (Endpoint, bool) {
	switch item {
	case v.Items[0]:
		return Endpoint{Item: v.Items[1], Attribute: v.Attributes[1]}, true
	case v.Items[1]:
		return Endpoint{Item: v.Items[0], Attribute: v.Attributes[0]}, true
	}
	return Endpoint{}, false
}

// SameValue reports whether replacing a with b would be a no-op. Each value
// type has its own equality test; values of different types never match.
func SameValue(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Text:
		return av == b.(Text)
	case Number:
		return av.Decimal.Equal(b.(Number).Decimal)
	case Date:
		return av.Time.Equal(b.(Date).Time)
	case Checkmark:
		return av == b.(Checkmark)
	case URL:
		return av == b.(URL)
	case ItemRef:
		return av.Item == b.(ItemRef).Item
	case Connection:
		// A connection matches when it joins the same two endpoints, in
		// either orientation.
		bv := b.(Connection)
		if av == bv {
			return true
		}
		return av.Items[0] == bv.Items[1] && av.Items[1] == bv.Items[0] &&
			av.Attributes[0] == bv.Attributes[1] && av.Attributes[1] == bv.Attributes[0]
	default:
		panic(fmt.Sprintf("domain: unhandled value type %T", a))
	}
}

// Matches reports whether the value satisfies a query's matching value. Text
// and URL match by string; item references by identity; connections match when
// either endpoint is the wanted item.
func Matches(v Value, want Value) bool {
	if ref, ok := want.(ItemRef); ok {
		switch vv := v.(type) {
		case ItemRef:
			return vv.Item == ref.Item
		case Connection:
			return vv.Items[0] == ref.Item || vv.Items[1] == ref.Item
		}
		return false
	}
	return SameValue(v, want)
}
