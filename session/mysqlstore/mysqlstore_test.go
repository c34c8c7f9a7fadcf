package mysqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bluescreen10/ipernity/session/mysqlstore"
)

func TestInvalidTable(t *testing.T) {
	_, err := mysqlstore.New(context.Background(), nil, mysqlstore.WithTable("sessions; DROP TABLE x"))
	if err == nil {
		t.Fatal("expected an error for an invalid table name")
	}
}

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a mariadb container")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	db, err := getDB(t)
	if err != nil {
		t.Fatal(err)
	}

	s, err := mysqlstore.New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("SetGet", func(t *testing.T) {
		expectedData := []byte("hello world")
		if err := s.Set(ctx, "abc123", expectedData, time.Now().Add(1*time.Hour)); err != nil {
			t.Fatal(err)
		}
		data, found, err := s.Get(ctx, "abc123")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatalf("expected 'true' got '%v'", found)
		}
		if string(data) != string(expectedData) {
			t.Fatalf("expected '%s' got '%s'", expectedData, data)
		}
	})

	t.Run("EmptyGet", func(t *testing.T) {
		_, found, err := s.Get(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatalf("expected 'false' got '%v'", found)
		}
	})

	t.Run("GetExpired", func(t *testing.T) {
		if err := s.Set(ctx, "expired", []byte("x"), time.Now().Add(1*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
		_, found, err := s.Get(ctx, "expired")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatalf("expected 'false' got '%v'", found)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Set(ctx, "deleted", []byte("x"), time.Now().Add(1*time.Hour))
		if err := s.Delete(ctx, "deleted"); err != nil {
			t.Fatal(err)
		}
		_, found, err := s.Get(ctx, "deleted")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatalf("expected 'false' got '%v'", found)
		}
	})

	t.Run("PeriodicCleanup", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		s.Set(ctx, "short", []byte("x"), time.Now().Add(10*time.Millisecond))

		done := make(chan struct{})
		go func() {
			s.PeriodicCleanUp(cctx, 20*time.Millisecond)
			close(done)
		}()
		time.Sleep(100 * time.Millisecond)
		cancel()
		<-done

		var got int
		row := db.QueryRow("SELECT COUNT(*) FROM sessions WHERE token = 'short'")
		if err := row.Scan(&got); err != nil {
			t.Fatal(err)
		}
		if got != 0 {
			t.Fatalf("expected expired row to be removed, got '%d'", got)
		}
	})
}

func getDB(t *testing.T) (*sql.DB, error) {
	ctx := context.Background()
	server, err := testcontainers.Run(
		ctx, "mariadb:latest",
		testcontainers.WithEnv(map[string]string{
			"MARIADB_ROOT_PASSWORD": "rootpass",
			"MARIADB_DATABASE":      "testdb",
			"MARIADB_USER":          "testuser",
			"MARIADB_PASSWORD":      "testpass",
		}),
		testcontainers.WithExposedPorts("3306/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("ready for connections"),
		),
	)
	testcontainers.CleanupContainer(t, server)
	if err != nil {
		return nil, err
	}

	host, err := server.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := server.MappedPort(ctx, "3306")
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("testuser:testpass@tcp(%s:%s)/testdb?parseTime=true", host, port.Port())
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { db.Close() })
	return db, nil
}
