package domain

import (
	"crypto/md5" // #nosec G501 -- the stored user list format fixes MD5
	"encoding/hex"

	"github.com/google/uuid"
)

// User is an account record. A user is also an ordinary item sharing the same
// UUID, which carries the user's name entry.
type User struct {
	ID uuid.UUID
	Stamp
	// PasswordHash is the hex MD5 digest of the password; empty means no
	// password is required.
	PasswordHash string
}

// RecordID implements Record.
func (u User) RecordID() uuid.UUID { return u.ID }

// Kind implements Record.
func (User) Kind() RecordKind { return KindUser }

// RecordStamp implements Record.
func (u User) RecordStamp() Stamp { return u.Stamp }

// HashPassword returns the digest stored for password, or "" for an empty
// password.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	sum := md5.Sum([]byte(password)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// CheckPassword reports whether password unlocks the account.
func (u User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return true
	}
	return HashPassword(password) == u.PasswordHash
}

// Node returns the 12 hex digit node field of the user's UUID. UUIDs minted
// while the user is logged in reuse it.
func (u User) Node() string {
	return hex.EncodeToString(u.ID[10:])
}
