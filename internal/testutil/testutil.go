// Package testutil provides database, Redis, and time helpers for
// integration tests. Tests skip themselves when the backing services are
// not reachable unless TEST_REQUIRE_DB / TEST_REQUIRE_REDIS /
// TEST_REQUIRE_INFRA demand them, so `go test ./...` stays runnable on a
// bare checkout.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for tests
	"github.com/redis/go-redis/v9"

	"github.com/zapply/ingest-api/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers need. Both *testing.T
// and *testing.B satisfy it.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// WithAutoDB runs fn against a migrated test database. With
// TEST_DB_EPHEMERAL set, each call gets its own throwaway Postgres schema,
// which lets packages run in parallel. Otherwise fn runs against the shared
// test database, truncated before and after.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(setupEphemeralSchemaDB(t))
		return
	}

	db := setupSharedDB(t)
	defer func() {
		CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	}()
	fn(db)
}

// SkipIfNoTestDB skips the test when the test database cannot be reached.
// With TEST_REQUIRE_DB or TEST_REQUIRE_INFRA set it fails instead, so CI
// misconfiguration surfaces as red rather than skipped.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		skipOrFail(t, requireDB(), "test database not available:", err)
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		skipOrFail(t, requireDB(), "test database not available:", err)
	}
}

// CleanupTestDB deletes all rows from the application tables, children
// before parents so foreign keys hold.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, table := range []string{"jobs", "source_runs", "runs", "sources", "profiles", "app_settings"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}
}

func setupSharedDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Fatal("open test database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatal("connect to test database (is the compose test profile up?):", err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("migrate test database:", err)
	}

	CleanupTestDB(t, db)
	return db
}

// setupEphemeralSchemaDB creates a uniquely named schema, points
// search_path at it, migrates it, and registers a cleanup that drops it.
func setupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Fatal("open admin connection:", err)
	}

	schema := randomSchemaName()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", dsnWithSearchPath(t, schema))
	if err != nil {
		closeQuietly(t, admin)
		t.Fatal("open schema-scoped connection:", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()

		closeQuietly(t, db)
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeQuietly(t, admin)
	})

	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}

// testDSN builds the test database DSN. The defaults match the compose
// test profile; CI overrides via TEST_DB_* variables.
func testDSN() string {
	hostPort := net.JoinHostPort(
		envOrDefault("TEST_DB_HOST", "localhost"),
		envOrDefault("TEST_DB_PORT", "55432"),
	)
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		envOrDefault("TEST_DB_USER", "zapply"),
		envOrDefault("TEST_DB_PASSWORD", "zapply"),
		hostPort,
		envOrDefault("TEST_DB_NAME", "zapply"),
		envOrDefault("DB_SSL_MODE", "disable"),
	)
}

func dsnWithSearchPath(t TestingTB, schema string) string {
	u, err := url.Parse(testDSN())
	if err != nil {
		t.Fatal("parse test DSN:", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()
	return u.String()
}

func randomSchemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func closeQuietly(t TestingTB, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("close: %v", err)
	}
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
		return
	}
	t.Skip(args...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// SetupTestRedis returns a Redis client pointed at a flushed test database.
// The address comes from REDIS_ADDR or a short list of conventional
// candidates. Each test package reserves its own logical DB index so
// FlushDB cannot race across packages.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := findTestRedis(t)
	if !ok {
		if requireRedis() {
			t.Fatal("redis not available for testing")
		}
		t.Skip("redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   reserveRedisDB(t, addr),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		closeQuietly(t, client)
		skipOrFail(t, requireRedis(), fmt.Sprintf("redis not available at %s: %v", addr, err))
	}

	client.FlushDB(ctx)
	return client
}

func findTestRedis(t TestingTB) (string, bool) {
	t.Helper()

	candidates := []string{"redis:6379", "localhost:6379", "localhost:56379"}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}

	for _, addr := range candidates {
		if pingRedis(t, addr) {
			return addr, true
		}
	}
	return "", false
}

func pingRedis(t TestingTB, addr string) bool {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// reserveRedisDB picks a logical DB index in [1..15] for this test run.
// Reservations live as SetNX keys in DB 0 so flushing the reserved DB does
// not erase them. TEST_REDIS_DB overrides the selection.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("invalid TEST_REDIS_DB=%q, auto-selecting", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeQuietly(t, meta)

	for i := 1; i <= 15; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lockKey := fmt.Sprintf("zapply:testutil:db_lock:%d", i)
		lockVal := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
		ok, err := meta.SetNX(ctx, lockKey, lockVal, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}

		t.Cleanup(func() { releaseRedisDB(t, addr, lockKey) })
		return i
	}

	t.Logf("all redis test DBs reserved at %s, sharing DB 1", addr)
	return 1
}

func releaseRedisDB(t TestingTB, addr, lockKey string) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeQuietly(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Del(ctx, lockKey).Err(); err != nil {
		t.Logf("release redis db lock %s: %v", lockKey, err)
	}
}

// TestTime returns the fixed reference instant used across tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// TestTimeProvider is a manually advanced clock implementing the data
// layer's TimeProvider.
type TestTimeProvider struct {
	currentTime time.Time
}

// NewTestTimeProvider creates a clock frozen at startTime.
func NewTestTimeProvider(startTime time.Time) *TestTimeProvider {
	return &TestTimeProvider{currentTime: startTime}
}

// Now returns the clock's current instant.
func (p *TestTimeProvider) Now() time.Time {
	return p.currentTime
}

// SetTime moves the clock to t.
func (p *TestTimeProvider) SetTime(t time.Time) {
	p.currentTime = t
}

// AddTime advances the clock by d.
func (p *TestTimeProvider) AddTime(d time.Duration) {
	p.currentTime = p.currentTime.Add(d)
}

// Pointer helpers for optional request fields.

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
