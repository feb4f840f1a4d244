package domain

import (
	"fmt"
	"strings"
)

// RetrievalFilter is the policy used to resolve the current values of an
// attribute from its edit and vote history.
type RetrievalFilter int

// Retrieval filter modes. Only LastEditWins and Unabridged are implemented.
const (
	// LastEditWins keeps entries that are neither superseded nor voted deleted.
	LastEditWins RetrievalFilter = iota
	// SingleUser is recognised but unsupported.
	SingleUser
	// Democratic is recognised but unsupported.
	Democratic
	// Unabridged returns every entry ever created.
	Unabridged
)

var filterNames = map[RetrievalFilter]string{
	LastEditWins: "LAST_EDIT_WINS",
	SingleUser:   "SINGLE_USER",
	Democratic:   "DEMOCRATIC",
	Unabridged:   "UNABRIDGED",
}

func (f RetrievalFilter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("RetrievalFilter(%d)", int(f))
}

// Supported reports whether the mode has an implementation.
func (f RetrievalFilter) Supported() bool {
	return f == LastEditWins || f == Unabridged
}

// ParseRetrievalFilter maps a mode name (case-insensitive) to its value. The
// empty string selects LastEditWins.
func ParseRetrievalFilter(s string) (RetrievalFilter, error) {
	if strings.TrimSpace(s) == "" {
		return LastEditWins, nil
	}
	want := strings.ToUpper(strings.TrimSpace(s))
	for f, name := range filterNames {
		if name == want {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown retrieval filter %q", s)
}
