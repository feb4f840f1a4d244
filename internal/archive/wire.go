package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// millis is a timestamp carried as string-encoded integer milliseconds. Bare
// numbers are accepted on read.
type millis time.Time

func (m millis) MarshalJSON() ([]byte, error) {
	t := time.Time(m)
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return strconv.AppendQuote(nil, strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (m *millis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = millis{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*m = millis(time.UnixMilli(ms).UTC())
	return nil
}

// wireStamp holds the fields every leaf record carries.
type wireStamp struct {
	UUID      string `json:"uuid"`
	Userstamp string `json:"userstamp"`
	Timestamp millis `json:"timestamp"`
}

func (w wireStamp) id() (uuid.UUID, error) { return parseID("uuid", w.UUID) }

func (w wireStamp) stamp() (domain.Stamp, error) {
	var user uuid.UUID
	if w.Userstamp != "" {
		var err error
		if user, err = parseID("userstamp", w.Userstamp); err != nil {
			return domain.Stamp{}, err
		}
	}
	return domain.Stamp{Userstamp: user, Timestamp: time.Time(w.Timestamp)}, nil
}

func stampOf(id uuid.UUID, s domain.Stamp) wireStamp {
	ws := wireStamp{UUID: id.String(), Timestamp: millis(s.Timestamp)}
	if s.Userstamp != uuid.Nil {
		ws.Userstamp = s.Userstamp.String()
	}
	return ws
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q: %v", ErrMalformedRecord, field, s, err)
	}
	return id, nil
}

// parseOptionalID treats an empty string as absent.
func parseOptionalID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return parseID(field, s)
}

// idOrPair is the item or attribute field of an entry: one UUID for a plain
// entry, a two-element array for a connection.
type idOrPair []string

func (p idOrPair) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}

func (p *idOrPair) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var pair []string
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		*p = pair
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*p = idOrPair{one}
	return nil
}

func (p idOrPair) ids(field string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(p))
	for _, s := range p {
		id, err := parseID(field, s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// wireValue is the {type, value} pair of an entry.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// wireUser is one element of a user list.
type wireUser struct {
	UUID     string  `json:"uuid"`
	Password *string `json:"password"`
}

func (w wireUser) user() (domain.User, error) {
	id, err := parseID("uuid", w.UUID)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{ID: id}
	if w.Password != nil {
		u.PasswordHash = *w.Password
	}
	return u, nil
}

func userOf(u domain.User) wireUser {
	w := wireUser{UUID: u.ID.String()}
	if u.PasswordHash != "" {
		hash := u.PasswordHash
		w.Password = &hash
	}
	return w
}

func decodeUsers(in []wireUser) ([]domain.User, error) {
	out := make([]domain.User, 0, len(in))
	for _, w := range in {
		u, err := w.user()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// scalar reads a JSON string, number or boolean as its literal text.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		return "", fmt.Errorf("%w: value is not a scalar", ErrMalformedRecord)
	}
	return string(raw), nil
}

// decodeValue turns a tagged literal into a Value. Connection values carry no
// literal; their endpoints come from the entry and are handled by the caller.
// itemTags lists the tags this generation uses for item references.
func decodeValue(typ string, raw json.RawMessage, itemTags ...string) (domain.Value, error) {
	lit, err := scalar(raw)
	if err != nil {
		return nil, err
	}
	for _, tag := range itemTags {
		if typ == tag {
			id, err := parseID("value", lit)
			if err != nil {
				return nil, err
			}
			return domain.ItemRef{Item: id}, nil
		}
	}
	switch domain.ValueType(typ) {
	case domain.TypeText:
		return domain.Text(unescape(lit)), nil
	case domain.TypeNumber:
		d, err := decimal.NewFromString(lit)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrMalformedRecord, lit)
		}
		return domain.Number{Decimal: d}, nil
	case domain.TypeDate:
		d, err := domain.ParseDate(lit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return d, nil
	case domain.TypeCheckmark:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return nil, fmt.Errorf("%w: checkmark %q", ErrMalformedRecord, lit)
		}
		return domain.Checkmark(b), nil
	case domain.TypeURL:
		return domain.URL(lit), nil
	default:
		return nil, fmt.Errorf("%w: value type %q", ErrMalformedRecord, typ)
	}
}

// encodeValue writes a non-connection value in the current generation.
func encodeValue(v domain.Value) (wireValue, error) {
	var lit string
	switch x := v.(type) {
	case domain.Text:
		lit = escape(string(x))
	case domain.Number:
		lit = x.Decimal.String()
	case domain.Date:
		lit = strconv.FormatInt(x.Time.UnixMilli(), 10)
	case domain.Checkmark:
		lit = strconv.FormatBool(bool(x))
	case domain.URL:
		lit = string(x)
	case domain.ItemRef:
		lit = x.Item.String()
	case domain.Connection:
		return wireValue{Type: string(domain.TypeConnection)}, nil
	default:
		return wireValue{}, fmt.Errorf("archive: cannot encode value %T", v)
	}
	raw, err := json.Marshal(lit)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Type: string(v.Type()), Value: raw}, nil
}

var (
	escaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;", "\r", "&#13;")
	unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#10;", "\n", "&#13;", "\r", "&amp;", "&")
)

// escape applies the entity escaping text values carry on the wire.
func escape(s string) string { return escaper.Replace(s) }

// unescape reverses escape.
func unescape(s string) string { return unescaper.Replace(s) }
