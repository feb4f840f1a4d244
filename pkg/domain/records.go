// Package domain defines the persistent record types of the item store: items,
// entries, votes, ordinals and users, together with the value sum type, the
// retrieval filter modes and the error taxonomy shared by every layer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies the concrete type of a persisted record.
type RecordKind string

// Supported record kinds. The string values double as the wire tags of the
// chronological log formats.
const (
	// KindItem identifies an item record.
	KindItem RecordKind = "Item"
	// KindEntry identifies an entry (attribute value assignment) record.
	KindEntry RecordKind = "Entry"
	// KindVote identifies a retain/delete vote.
	KindVote RecordKind = "Vote"
	// KindOrdinal identifies a sort-position marker.
	KindOrdinal RecordKind = "Ordinal"
	// KindUser identifies a user account record.
	KindUser RecordKind = "User"
)

// Stamp records who created a record and when.
type Stamp struct {
	Userstamp uuid.UUID
	Timestamp time.Time
}

// NewStamp truncates the timestamp to millisecond precision, which is what the
// wire formats can carry.
func NewStamp(user uuid.UUID, at time.Time) Stamp {
	return Stamp{Userstamp: user, Timestamp: at.UTC().Truncate(time.Millisecond)}
}

// Record is implemented by every persisted record type. Records are immutable
// once created.
type Record interface {
	RecordID() uuid.UUID
	Kind() RecordKind
	RecordStamp() Stamp
}

// ItemRecord is the persisted creation marker of an item. An item's attribute
// values live in separate Entry records.
type ItemRecord struct {
	ID uuid.UUID
	Stamp
}

// RecordID implements Record.
func (r ItemRecord) RecordID() uuid.UUID { return r.ID }

// Kind implements Record.
func (ItemRecord) Kind() RecordKind { return KindItem }

// RecordStamp implements Record.
func (r ItemRecord) RecordStamp() Stamp { return r.Stamp }

// Entry assigns a value to an (item, attribute) pair. A connection entry
// attaches itself to two items at once; Item and Attribute then name the first
// endpoint and the Connection value carries both.
type Entry struct {
	ID uuid.UUID
	Stamp
	Item      uuid.UUID
	Attribute uuid.UUID
	// Previous is the entry this one supersedes, uuid.Nil when none.
	Previous uuid.UUID
	Value    Value
}

// RecordID implements Record.
func (e Entry) RecordID() uuid.UUID { return e.ID }

// Kind implements Record.
func (Entry) Kind() RecordKind { return KindEntry }

// RecordStamp implements Record.
func (e Entry) RecordStamp() Stamp { return e.Stamp }

// HasPrevious reports whether the entry supersedes an earlier one.
func (e Entry) HasPrevious() bool { return e.Previous != uuid.Nil }

// IsConnection reports whether the entry links two items.
func (e Entry) IsConnection() bool {
	_, ok := e.Value.(Connection)
	return ok
}

// Endpoint is one (item, attribute) pair an entry is attached to.
type Endpoint struct {
	Item      uuid.UUID
	Attribute uuid.UUID
}

// Endpoints returns the (item, attribute) pairs the entry is filed under: one
// for a plain entry, two for a connection.
func (e Entry) Endpoints() []Endpoint {
	if c, ok := e.Value.(Connection); ok {
		return []Endpoint{
			{Item: c.Items[0], Attribute: c.Attributes[0]},
			{Item: c.Items[1], Attribute: c.Attributes[1]},
		}
	}
	return []Endpoint{{Item: e.Item, Attribute: e.Attribute}}
}

// Vote marks a record as retained or deleted.
type Vote struct {
	ID uuid.UUID
	Stamp
	Target uuid.UUID
	Retain bool
}

// RecordID implements Record.
func (v Vote) RecordID() uuid.UUID { return v.ID }

// Kind implements Record.
func (Vote) Kind() RecordKind { return KindVote }

// RecordStamp implements Record.
func (v Vote) RecordStamp() Stamp { return v.Stamp }

// Ordinal assigns a user-controlled sort position to a record.
type Ordinal struct {
	ID uuid.UUID
	Stamp
	Target   uuid.UUID
	Position float64
}

// RecordID implements Record.
func (o Ordinal) RecordID() uuid.UUID { return o.ID }

// Kind implements Record.
func (Ordinal) Kind() RecordKind { return KindOrdinal }

// RecordStamp implements Record.
func (o Ordinal) RecordStamp() Stamp { return o.Stamp }

// Transaction is an in-memory batch of records committed together. It is a
// grouping only; the transaction itself has no identity.
type Transaction struct {
	Records []Record
}

// IDs lists the record IDs in batch order.
func (t Transaction) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(t.Records))
	for _, r := range t.Records {
		out = append(out, r.RecordID())
	}
	return out
}

// Users returns the user records contained in the batch.
func (t Transaction) Users() []User {
	var out []User
	for _, r := range t.Records {
		if u, ok := r.(User); ok {
			out = append(out, u)
		}
	}
	return out
}

// Compile-time assertions that every record type satisfies Record.
var (
	_ Record = ItemRecord{}
	_ Record = Entry{}
	_ Record = Vote{}
	_ Record = Ordinal{}
	_ Record = User{}
)
