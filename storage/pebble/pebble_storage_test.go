package pebble

import (
	"log"
	"os"
	"testing"

	"github.com/tessera-authz/tessera"
	"github.com/tessera-authz/tessera/testsuite"
)

var (
	dirname = ""
	storage tessera.Storage
)

func TestMain(m *testing.M) {

	dirname = os.Getenv("TEST_PEBBLE_DIR")

	if dirname == "" {
		_ = os.RemoveAll("./pebble-test")
		dirname = "./pebble-test"
	}

	var err error
	storage, err = NewPebbleStorage(dirname)
	if err != nil {
		log.Fatalf("PebbleStorage creation failed: %v", err)
	}

	code := m.Run()

	// os.Exit doesn't care for defer, so let's explicitly close...
	storage.Close()

	os.Exit(code)
}

func TestPebbleWithTestSuite(t *testing.T) {
	testsuite.RunTestAll(t, map[string]tessera.Storage{
		"pebble": storage,
	})
}

func BenchmarkPebble(b *testing.B) {
	testsuite.RunBenchmarkAll(b, map[string]tessera.Storage{
		"pebble": storage,
	})
}
