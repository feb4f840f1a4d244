package domain

import (
	"testing"

	"itemdb/testutil"
)

// TestDomainDoesNotImportInternal keeps the record model free of store and
// driver implementation packages.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not depend on internal packages")
}
