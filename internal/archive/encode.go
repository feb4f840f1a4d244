package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// userListCodec reads the separate user list introduced alongside the May
// chronological log. It yields users only.
type userListCodec struct{}

func (userListCodec) Format() Format { return FormatMayUsers }

func (userListCodec) Decode(data []byte) (*Log, error) {
	env, err := openEnvelope(data, FormatMayUsers)
	if err != nil {
		return nil, err
	}
	if len(env.Data) > 0 || len(env.Records) > 0 {
		return nil, fmt.Errorf("%w: a user list carries no records", ErrMalformedEnvelope)
	}
	users, err := decodeUsers(env.Users)
	if err != nil {
		return nil, err
	}
	return &Log{Format: FormatMayUsers, Timestamp: time.Time(env.Timestamp), Users: users}, nil
}

type outEnvelope struct {
	Format    Format            `json:"format"`
	Timestamp millis            `json:"timestamp"`
	Records   []json.RawMessage `json:"records,omitempty"`
	Users     []wireUser        `json:"users,omitempty"`
}

type outEntry struct {
	wireStamp
	Item          idOrPair  `json:"item"`
	Attribute     idOrPair  `json:"attribute"`
	PreviousEntry string    `json:"previousEntry,omitempty"`
	Value         wireValue `json:"value"`
}

type outOrdinal struct {
	wireStamp
	Record        string  `json:"record"`
	OrdinalNumber float64 `json:"ordinalNumber"`
}

// EncodeRecord writes one record as a tagged object in the current
// generation.
func EncodeRecord(rec domain.Record) (json.RawMessage, error) {
	var tag string
	var body any
	switch r := rec.(type) {
	case domain.ItemRecord:
		tag, body = tagItem, stampOf(r.ID, r.Stamp)
	case domain.User:
		tag, body = tagUser, stampOf(r.ID, r.Stamp)
	case domain.Entry:
		out, err := entryOf(r)
		if err != nil {
			return nil, err
		}
		tag, body = tagEntry, out
	case domain.Vote:
		tag, body = tagVote, wireVote{wireStamp: stampOf(r.ID, r.Stamp), Record: r.Target.String(), RetainFlag: flag(r.Retain)}
	case domain.Ordinal:
		tag, body = tagOrdinal, outOrdinal{wireStamp: stampOf(r.ID, r.Stamp), Record: r.Target.String(), OrdinalNumber: r.Position}
	default:
		return nil, fmt.Errorf("archive: cannot encode record %T", rec)
	}
	return marshal(map[string]any{tag: body})
}

func entryOf(e domain.Entry) (outEntry, error) {
	out := outEntry{wireStamp: stampOf(e.ID, e.Stamp)}
	if e.HasPrevious() {
		out.PreviousEntry = e.Previous.String()
	}
	if c, ok := e.Value.(domain.Connection); ok {
		out.Item = idOrPair{c.Items[0].String(), c.Items[1].String()}
		out.Attribute = idOrPair{c.Attributes[0].String(), c.Attributes[1].String()}
	} else {
		out.Item = idOrPair{e.Item.String()}
		out.Attribute = idOrPair{e.Attribute.String()}
	}
	v, err := encodeValue(e.Value)
	if err != nil {
		return outEntry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	out.Value = v
	return out, nil
}

func encodeRecords(records []domain.Record) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		raw, err := EncodeRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// EncodeFragment writes records as a JSON array of tagged records: the unit
// appended to a chronological log.
func EncodeFragment(records []domain.Record) ([]byte, error) {
	raws, err := encodeRecords(records)
	if err != nil {
		return nil, err
	}
	return marshal(raws)
}

// EncodeTransaction writes records as a fragment holding a single
// Transaction record.
func EncodeTransaction(records []domain.Record) ([]byte, error) {
	raws, err := encodeRecords(records)
	if err != nil {
		return nil, err
	}
	return marshal([]map[string][]json.RawMessage{{tagTransaction: raws}})
}

// EncodeDump writes a complete current-generation document.
func EncodeDump(records []domain.Record, users []domain.User, at time.Time) ([]byte, error) {
	raws, err := encodeRecords(records)
	if err != nil {
		return nil, err
	}
	return dump(raws, users, at)
}

func dump(raws []json.RawMessage, users []domain.User, at time.Time) ([]byte, error) {
	env := outEnvelope{Format: Current, Timestamp: millis(at), Records: raws}
	for _, u := range users {
		env.Users = append(env.Users, userOf(u))
	}
	return marshal(env)
}

// EncodeUserList writes the separate user list document.
func EncodeUserList(users []domain.User, at time.Time) ([]byte, error) {
	env := outEnvelope{Format: FormatMayUsers, Timestamp: millis(at)}
	for _, u := range users {
		env.Users = append(env.Users, userOf(u))
	}
	return marshal(env)
}

// DecodeFragment reads one journal fragment. A fragment is either an array of
// current-generation records or a complete document of any generation, as
// left behind by an import.
func DecodeFragment(data []byte) ([]domain.Record, []domain.User, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		log, err := DecodeAny(data)
		if err != nil {
			return nil, nil, err
		}
		return log.Records, log.Users, nil
	}
	items, err := list(data)
	if err != nil {
		return nil, nil, err
	}
	records, err := june.records(items)
	if err != nil {
		return nil, nil, err
	}
	return records, nil, nil
}

// AssembleDump joins journal fragments into one current-generation document.
// Record fragments are copied through verbatim; full documents are decoded
// and re-encoded, and users they carry precede users in the output. A full
// document drops records already written by an earlier fragment, so the
// cumulative revisions left by a dump archive assemble without repeats, and
// a user seen twice keeps its latest version.
func AssembleDump(fragments [][]byte, users []domain.User, at time.Time) ([]byte, error) {
	var raws []json.RawMessage
	var embedded []domain.User
	seen := make(map[uuid.UUID]struct{})
	for i, frag := range fragments {
		frag = bytes.TrimSpace(frag)
		records, us, err := DecodeFragment(frag)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		if len(frag) > 0 && frag[0] == '{' {
			var fresh []domain.Record
			for _, r := range records {
				if _, dup := seen[r.RecordID()]; !dup {
					fresh = append(fresh, r)
				}
			}
			embedded = mergeUsers(embedded, us)
			records = fresh
			enc, err := encodeRecords(records)
			if err != nil {
				return nil, fmt.Errorf("fragment %d: %w", i, err)
			}
			raws = append(raws, enc...)
		} else {
			items, err := list(frag)
			if err != nil {
				return nil, fmt.Errorf("fragment %d: %w", i, err)
			}
			raws = append(raws, items...)
		}
		for _, r := range records {
			seen[r.RecordID()] = struct{}{}
		}
	}
	return dump(raws, mergeUsers(embedded, users), at)
}

// mergeUsers appends next to users, replacing in place any user already
// present under the same ID.
func mergeUsers(users, next []domain.User) []domain.User {
	for _, u := range next {
		if i := slices.IndexFunc(users, func(o domain.User) bool { return o.ID == u.ID }); i >= 0 {
			users[i] = u
			continue
		}
		users = append(users, u)
	}
	return users
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
