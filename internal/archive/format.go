// Package archive reads and writes the persisted record log. It decodes every
// historical wire generation, encodes the current one, and provides the
// adapters that sit between a World and a durable journal.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"itemdb/pkg/domain"
)

// Format is a wire generation tag carried in a document's envelope.
type Format string

// Known generations, oldest first.
const (
	FormatMarch    Format = "2005_MARCH_ITEM_CENTRIC_LIST"
	FormatApril    Format = "2005_APRIL_CHRONOLOGICAL_LIST"
	FormatMay      Format = "2005_MAY_CHRONOLOGICAL_LIST"
	FormatMayUsers Format = "2005_MAY_USER_LIST"
	FormatJune     Format = "2005_JUNE_CHRONOLOGICAL_LIST"
)

// Current is the generation written by the encoder.
const Current = FormatJune

// Decode errors.
var (
	ErrMalformedEnvelope = fmt.Errorf("%w: malformed envelope", domain.ErrPrecondition)
	ErrUnknownFormat     = fmt.Errorf("%w: unknown format tag", domain.ErrPrecondition)
	ErrFormatMismatch    = fmt.Errorf("%w: format tag does not match codec", domain.ErrInvariant)
	ErrUnknownRecordTag  = fmt.Errorf("%w: unknown record tag", domain.ErrInvariant)
	ErrMalformedRecord   = fmt.Errorf("%w: malformed record", domain.ErrInvariant)
)

// Log is a decoded document: its records in log order plus any user list it
// carried.
type Log struct {
	Format    Format
	Timestamp time.Time
	Records   []domain.Record
	Users     []domain.User
}

// Codec decodes one wire generation. A codec handed a document of another
// generation fails with ErrFormatMismatch rather than guessing.
type Codec interface {
	Format() Format
	Decode(data []byte) (*Log, error)
}

var codecs = map[Format]Codec{
	FormatMarch:    marchCodec{},
	FormatApril:    aprilCodec{},
	FormatMay:      mayCodec{},
	FormatMayUsers: userListCodec{},
	FormatJune:     juneCodec{},
}

// Lookup returns the codec for a generation tag.
func Lookup(f Format) (Codec, bool) {
	c, ok := codecs[f]
	return c, ok
}

// Formats lists every decodable generation, oldest first.
func Formats() []Format {
	return []Format{FormatMarch, FormatApril, FormatMay, FormatMayUsers, FormatJune}
}

// DecodeAny reads the envelope's format tag and hands the document to the
// matching codec.
func DecodeAny(data []byte) (*Log, error) {
	env, err := readEnvelope(data)
	if err != nil {
		return nil, err
	}
	c, ok := Lookup(env.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, env.Format)
	}
	return c.Decode(data)
}

// envelope is the top-level object shared by every generation.
type envelope struct {
	Format    Format          `json:"format"`
	Timestamp millis          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Records   json.RawMessage `json:"records,omitempty"`
	Users     []wireUser      `json:"users,omitempty"`
}

func readEnvelope(data []byte) (envelope, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Format == "" {
		return envelope{}, fmt.Errorf("%w: missing format", ErrMalformedEnvelope)
	}
	return env, nil
}

// openEnvelope parses data and checks it is tagged want.
func openEnvelope(data []byte, want Format) (envelope, error) {
	env, err := readEnvelope(data)
	if err != nil {
		return envelope{}, err
	}
	if env.Format != want {
		return envelope{}, fmt.Errorf("%w: got %q, want %q", ErrFormatMismatch, env.Format, want)
	}
	return env, nil
}

// list splits a JSON array into its elements. A missing list is empty.
func list(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: record list: %v", ErrMalformedEnvelope, err)
	}
	return out, nil
}

// tagged splits a single-key object such as {"Item": {...}} into its tag and
// body.
func tagged(raw json.RawMessage) (string, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: tagged record has %d keys", ErrMalformedRecord, len(obj))
	}
	var tag string
	var body json.RawMessage
	for k, v := range obj {
		tag, body = k, v
	}
	return tag, body, nil
}
