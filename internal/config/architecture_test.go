package config

import (
	"testing"

	"itemdb/testutil"
)

func TestConfigImportsNoInternalPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "config is loaded before anything is wired")
}
