package core

import (
	"testing"

	"sampleflow/testutil"
)

func TestCoreIsTransportAgnostic(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.TransportImportForbidden, "core must not depend on the HTTP layer")
}
