package sqlite3

import (
	"log"
	"os"
	"testing"

	"github.com/tessera-authz/tessera"
	"github.com/tessera-authz/tessera/testsuite"
)

var (
	filepath = ""
	storage  tessera.Storage
)

func TestMain(m *testing.M) {

	filepath = os.Getenv("TEST_SQLITE_FILE")

	if filepath == "" {
		_ = os.Remove("./test.db")
		filepath = "./test.db"
	}

	if err := RunMigrations(filepath); err != nil {
		log.Fatalf("Could not migrate db: %s", err)
	}

	var err error
	storage, err = NewSQLite3Storage(filepath)
	if err != nil {
		log.Fatalf("SQLite3Storage creation failed: %v", err)
	}

	code := m.Run()

	// os.Exit doesn't care for defer, so let's explicitly close...
	storage.Close()

	os.Exit(code)
}

func TestSQLite3WithTestSuite(t *testing.T) {
	testsuite.RunTestAll(t, map[string]tessera.Storage{
		"sqlite3": storage,
	})
}

func BenchmarkSQLite3(b *testing.B) {
	testsuite.RunBenchmarkAll(b, map[string]tessera.Storage{
		"sqlite3": storage,
	})
}
