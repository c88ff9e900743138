package memberbackend

import (
	"testing"

	"github.com/ironledger/memberd/internal/adapters/contracttest"
	"github.com/ironledger/memberd/internal/adapters/postgres/testutil"
	backendport "github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

func TestContract_PostgresBackend(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunBackend(t, func(t *testing.T) (backendport.Client, func()) {
		t.Helper()
		return NewBackend(pool), nil
	})
}
