package memberbackend

import (
	"testing"

	"github.com/ironledger/memberd/internal/adapters/contracttest"
	backendport "github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

func TestContract_MemoryBackend(t *testing.T) {
	contracttest.RunBackend(t, func(t *testing.T) (backendport.Client, func()) {
		t.Helper()
		return NewBackend(), nil
	})
}
