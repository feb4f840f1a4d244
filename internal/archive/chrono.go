package archive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// Record tags of the chronological generations.
const (
	tagItem        = "Item"
	tagValue       = "Value"
	tagEntry       = "Entry"
	tagVote        = "Vote"
	tagOrdinal     = "Ordinal"
	tagUser        = "User"
	tagTransaction = "Transaction"
)

// generation describes how one chronological wire generation spells its
// records. The three generations share everything not listed here.
type generation struct {
	format Format
	// listField is "data" (April) or "records" (May onwards).
	listField string
	// flatValues marks April's Value records, which carry type and value at
	// top level and name their predecessor previousValue.
	flatValues bool
	itemTags   []string
	// nested enables Transaction and User records.
	nested bool
	// inlineUsers marks generations whose envelope carries the user list.
	inlineUsers bool
}

var (
	april = generation{
		format: FormatApril, listField: "data", flatValues: true,
		itemTags: []string{"item", "uuid"}, inlineUsers: true,
	}
	may  = generation{format: FormatMay, listField: "records", itemTags: []string{"item"}}
	june = generation{
		format: FormatJune, listField: "records", itemTags: []string{"item"},
		nested: true, inlineUsers: true,
	}
)

type aprilCodec struct{}

func (aprilCodec) Format() Format                   { return FormatApril }
func (aprilCodec) Decode(data []byte) (*Log, error) { return april.decode(data) }

type mayCodec struct{}

func (mayCodec) Format() Format                   { return FormatMay }
func (mayCodec) Decode(data []byte) (*Log, error) { return may.decode(data) }

type juneCodec struct{}

func (juneCodec) Format() Format                   { return FormatJune }
func (juneCodec) Decode(data []byte) (*Log, error) { return june.decode(data) }

func (g generation) decode(data []byte) (*Log, error) {
	env, err := openEnvelope(data, g.format)
	if err != nil {
		return nil, err
	}
	raw := env.Records
	other := env.Data
	if g.listField == "data" {
		raw, other = env.Data, env.Records
	}
	if len(other) > 0 {
		return nil, fmt.Errorf("%w: %s carries its records in %q", ErrMalformedEnvelope, g.format, g.listField)
	}
	items, err := list(raw)
	if err != nil {
		return nil, err
	}
	records, err := g.records(items)
	if err != nil {
		return nil, err
	}
	log := &Log{Format: g.format, Timestamp: time.Time(env.Timestamp), Records: records}
	if len(env.Users) > 0 {
		if !g.inlineUsers {
			return nil, fmt.Errorf("%w: %s keeps users in a separate list", ErrMalformedEnvelope, g.format)
		}
		if log.Users, err = decodeUsers(env.Users); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// records decodes a list of tagged records, flattening transactions.
func (g generation) records(items []json.RawMessage) ([]domain.Record, error) {
	out := make([]domain.Record, 0, len(items))
	for i, raw := range items {
		tag, body, err := tagged(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if tag == tagTransaction && g.nested {
			nested, err := list(body)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			recs, err := g.records(nested)
			if err != nil {
				return nil, fmt.Errorf("transaction %d: %w", i, err)
			}
			out = append(out, recs...)
			continue
		}
		rec, err := g.record(tag, body)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g generation) record(tag string, body json.RawMessage) (domain.Record, error) {
	switch {
	case tag == tagItem:
		var w wireStamp
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		return itemRecord(w)
	case tag == tagValue && g.flatValues:
		var w wireFlatValue
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		return w.entry(g)
	case tag == tagEntry && !g.flatValues:
		var w wireEntry
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		return w.entry(g)
	case tag == tagVote:
		var w wireVote
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		return w.vote()
	case tag == tagOrdinal:
		var w wireOrdinal
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		return w.ordinal()
	case tag == tagUser && g.nested:
		var w wireStamp
		if err := unmarshal(body, &w); err != nil {
			return nil, err
		}
		id, err := w.id()
		if err != nil {
			return nil, err
		}
		st, err := w.stamp()
		if err != nil {
			return nil, err
		}
		return domain.User{ID: id, Stamp: st}, nil
	default:
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownRecordTag, tag, g.format)
	}
}

func unmarshal(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

func itemRecord(w wireStamp) (domain.ItemRecord, error) {
	id, err := w.id()
	if err != nil {
		return domain.ItemRecord{}, err
	}
	st, err := w.stamp()
	if err != nil {
		return domain.ItemRecord{}, err
	}
	return domain.ItemRecord{ID: id, Stamp: st}, nil
}

type wireEntry struct {
	wireStamp
	Item          idOrPair  `json:"item"`
	Attribute     idOrPair  `json:"attribute"`
	PreviousEntry string    `json:"previousEntry,omitempty"`
	Value         wireValue `json:"value"`
}

func (w wireEntry) entry(g generation) (domain.Entry, error) {
	return buildEntry(g, w.wireStamp, w.Item, w.Attribute, w.PreviousEntry, w.Value)
}

// wireFlatValue is April's Value record.
type wireFlatValue struct {
	wireStamp
	Item          idOrPair        `json:"item"`
	Attribute     idOrPair        `json:"attribute"`
	PreviousValue string          `json:"previousValue,omitempty"`
	Type          string          `json:"type"`
	Value         json.RawMessage `json:"value,omitempty"`
}

func (w wireFlatValue) entry(g generation) (domain.Entry, error) {
	return buildEntry(g, w.wireStamp, w.Item, w.Attribute, w.PreviousValue, wireValue{Type: w.Type, Value: w.Value})
}

func buildEntry(g generation, ws wireStamp, item, attr idOrPair, previous string, val wireValue) (domain.Entry, error) {
	id, err := ws.id()
	if err != nil {
		return domain.Entry{}, err
	}
	st, err := ws.stamp()
	if err != nil {
		return domain.Entry{}, err
	}
	prev, err := parseOptionalID("previousEntry", previous)
	if err != nil {
		return domain.Entry{}, err
	}
	items, err := item.ids("item")
	if err != nil {
		return domain.Entry{}, err
	}
	attrs, err := attr.ids("attribute")
	if err != nil {
		return domain.Entry{}, err
	}
	e := domain.Entry{ID: id, Stamp: st, Previous: prev}
	if val.Type == string(domain.TypeConnection) {
		if len(items) != 2 || len(attrs) != 2 {
			return domain.Entry{}, fmt.Errorf("%w: connection %s needs two items and two attributes", ErrMalformedRecord, id)
		}
		c := domain.Connection{Items: [2]uuid.UUID{items[0], items[1]}, Attributes: [2]uuid.UUID{attrs[0], attrs[1]}}
		e.Item, e.Attribute, e.Value = items[0], attrs[0], c
		return e, nil
	}
	if len(items) != 1 || len(attrs) != 1 {
		return domain.Entry{}, fmt.Errorf("%w: entry %s of type %q has %d items", ErrMalformedRecord, id, val.Type, len(items))
	}
	v, err := decodeValue(val.Type, val.Value, g.itemTags...)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("entry %s: %w", id, err)
	}
	e.Item, e.Attribute, e.Value = items[0], attrs[0], v
	return e, nil
}

// flag is a boolean written as the string "true" or "false".
type flag bool

func (f flag) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatBool(bool(f))), nil
}

func (f *flag) UnmarshalJSON(b []byte) error {
	s, err := scalar(b)
	if err != nil {
		return err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("retain flag %q: %w", s, err)
	}
	*f = flag(v)
	return nil
}

type wireVote struct {
	wireStamp
	Record     string `json:"record"`
	RetainFlag flag   `json:"retainFlag"`
}

func (w wireVote) vote() (domain.Vote, error) {
	id, err := w.id()
	if err != nil {
		return domain.Vote{}, err
	}
	st, err := w.stamp()
	if err != nil {
		return domain.Vote{}, err
	}
	target, err := parseID("record", w.Record)
	if err != nil {
		return domain.Vote{}, err
	}
	return domain.Vote{ID: id, Stamp: st, Target: target, Retain: bool(w.RetainFlag)}, nil
}

type wireOrdinal struct {
	wireStamp
	Record        string      `json:"record"`
	OrdinalNumber json.Number `json:"ordinalNumber"`
}

func (w wireOrdinal) ordinal() (domain.Ordinal, error) {
	id, err := w.id()
	if err != nil {
		return domain.Ordinal{}, err
	}
	st, err := w.stamp()
	if err != nil {
		return domain.Ordinal{}, err
	}
	target, err := parseID("record", w.Record)
	if err != nil {
		return domain.Ordinal{}, err
	}
	pos, err := w.OrdinalNumber.Float64()
	if err != nil {
		return domain.Ordinal{}, fmt.Errorf("%w: ordinal number %q", ErrMalformedRecord, w.OrdinalNumber)
	}
	return domain.Ordinal{ID: id, Stamp: st, Target: target, Position: pos}, nil
}
