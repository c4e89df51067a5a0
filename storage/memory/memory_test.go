package memory

import (
	"testing"

	"github.com/tessera-authz/tessera"
	"github.com/tessera-authz/tessera/testsuite"
)

func TestMemoryWithTestSuite(t *testing.T) {
	testsuite.RunTestAll(t, map[string]tessera.Storage{
		"memory": New(),
	})
}

func BenchmarkMemory(b *testing.B) {
	testsuite.RunBenchmarkAll(b, map[string]tessera.Storage{
		"memory": New(),
	})
}
