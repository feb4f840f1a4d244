package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// marchCodec reads the item-centric generation: one object per item with its
// attribute values inline. Values written as bare strings are text without
// their own identity; they get a UUID derived from the item, attribute and
// position so that decoding the same document twice yields the same records.
type marchCodec struct{}

func (marchCodec) Format() Format { return FormatMarch }

type marchItem struct {
	wireStamp
	Deleted    *flag           `json:"deleted,omitempty"`
	Attributes json.RawMessage `json:"attributes"`
}

type marchValue struct {
	wireStamp
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (marchCodec) Decode(data []byte) (*Log, error) {
	env, err := openEnvelope(data, FormatMarch)
	if err != nil {
		return nil, err
	}
	if len(env.Records) > 0 {
		return nil, fmt.Errorf("%w: %s carries its items in \"data\"", ErrMalformedEnvelope, FormatMarch)
	}
	items, err := list(env.Data)
	if err != nil {
		return nil, err
	}
	log := &Log{Format: FormatMarch, Timestamp: time.Time(env.Timestamp)}
	for i, raw := range items {
		recs, err := marchRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		log.Records = append(log.Records, recs...)
	}
	if log.Users, err = decodeUsers(env.Users); err != nil {
		return nil, err
	}
	return log, nil
}

func marchRecords(raw json.RawMessage) ([]domain.Record, error) {
	var mi marchItem
	if err := unmarshal(raw, &mi); err != nil {
		return nil, err
	}
	item, err := itemRecord(mi.wireStamp)
	if err != nil {
		return nil, err
	}
	out := []domain.Record{item}
	attrs, err := orderedObject(mi.Attributes)
	if err != nil {
		return nil, err
	}
	for _, kv := range attrs {
		attr, err := parseID("attribute", kv.key)
		if err != nil {
			return nil, err
		}
		values, err := list(kv.value)
		if err != nil {
			return nil, err
		}
		for n, rv := range values {
			e, err := marchEntry(item, attr, n, rv)
			if err != nil {
				return nil, fmt.Errorf("attribute %s value %d: %w", attr, n, err)
			}
			out = append(out, e)
		}
	}
	if mi.Deleted != nil && bool(*mi.Deleted) {
		out = append(out, domain.Vote{
			ID:     uuid.NewSHA1(item.ID, []byte("deleted")),
			Stamp:  item.Stamp,
			Target: item.ID,
		})
	}
	return out, nil
}

func marchEntry(item domain.ItemRecord, attr uuid.UUID, n int, raw json.RawMessage) (domain.Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Entry{}, err
		}
		return domain.Entry{
			ID:        uuid.NewSHA1(item.ID, []byte(attr.String()+"/"+strconv.Itoa(n))),
			Stamp:     item.Stamp,
			Item:      item.ID,
			Attribute: attr,
			Value:     domain.Text(unescape(s)),
		}, nil
	}
	var mv marchValue
	if err := unmarshal(raw, &mv); err != nil {
		return domain.Entry{}, err
	}
	id, err := mv.id()
	if err != nil {
		return domain.Entry{}, err
	}
	st, err := mv.stamp()
	if err != nil {
		return domain.Entry{}, err
	}
	v, err := decodeValue(mv.Type, mv.Value, "item")
	if err != nil {
		return domain.Entry{}, err
	}
	return domain.Entry{ID: id, Stamp: st, Item: item.ID, Attribute: attr, Value: v}, nil
}

type keyValue struct {
	key   string
	value json.RawMessage
}

// orderedObject reads a JSON object keeping its keys in document order.
func orderedObject(raw json.RawMessage) ([]keyValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: attributes: %v", ErrMalformedRecord, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: attributes is not an object", ErrMalformedRecord)
	}
	var out []keyValue
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: attributes: %v", ErrMalformedRecord, err)
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: attribute %s: %v", ErrMalformedRecord, key, err)
		}
		out = append(out, keyValue{key: key, value: v})
	}
	return out, nil
}
