package testsupport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-user-cache/users"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var dbSeq atomic.Int64

// SQLiteDSN returns a DSN for a private shared-cache in-memory database.
// Every call yields a distinct database.
func SQLiteDSN() string {
	return fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
}

// NewSQLiteDB opens an in-memory sqlite database with the users schema.
// The database is closed when the test finishes.
func NewSQLiteDB(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", SQLiteDSN())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	if err := users.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

// NewRedis starts a miniredis server and a client connected to it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
	})
	return mr, client
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadUsers reads a JSON array of create payloads.
func LoadUsers(t testing.TB, path string) []users.CreateUser {
	t.Helper()

	var out []users.CreateUser
	LoadFixtureJSON(t, path, &out)
	return out
}

// SeedUsers inserts the given payloads through repo and returns the records.
func SeedUsers(t testing.TB, repo users.Repository, payloads []users.CreateUser) []*users.User {
	t.Helper()

	out := make([]*users.User, 0, len(payloads))
	for _, p := range payloads {
		u, err := repo.Insert(context.Background(), p)
		if err != nil {
			t.Fatalf("failed to seed user %s: %v", p.Email, err)
		}
		out = append(out, u)
	}
	return out
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Age returns a pointer to v, for building payloads inline.
func Age(v int) *int {
	return &v
}

// Str returns a pointer to v.
func Str(v string) *string {
	return &v
}
