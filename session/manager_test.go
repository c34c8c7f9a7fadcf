package session_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bluescreen10/ipernity/session"
)

type mockstore struct {
	get    func(string) ([]byte, bool, error)
	set    func(string, []byte, time.Time) error
	delete func(string) error
}

func (s *mockstore) Get(_ context.Context, token string) ([]byte, bool, error) {
	return s.get(token)
}

func (s *mockstore) Set(_ context.Context, token string, data []byte, expiresAt time.Time) error {
	return s.set(token, data, expiresAt)
}

func (s *mockstore) Delete(_ context.Context, token string) error {
	return s.delete(token)
}

var _ session.Store = &mockstore{}

func TestCreateSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	expectedId := 123
	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	var storedData []byte
	store.set = func(token string, data []byte, _ time.Time) error {
		storedData = data
		return nil
	}

	h1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Set("user_id", expectedId)
	})

	r1 := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w1 := httptest.NewRecorder()
	sm.Handler(h1).ServeHTTP(w1, r1)

	store.get = func(string) ([]byte, bool, error) {
		return storedData, true, nil
	}

	var called bool
	h2 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		sess := sm.Get(r)
		if id := sess.GetInt("user_id"); id != expectedId {
			t.Fatalf("expected value '%d' got '%d'", expectedId, id)
		}
	})

	r2 := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w2 := httptest.NewRecorder()
	r2.Header.Set("Cookie", w1.Result().Header.Get("Set-Cookie"))
	sm.Handler(h2).ServeHTTP(w2, r2)

	if !called {
		t.Fatal("expected handler to be called")
	}
}

func TestSessionSavedBeforeRedirect(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	var saved bool
	store.get = func(string) ([]byte, bool, error) {
		return nil, false, nil
	}
	store.set = func(string, []byte, time.Time) error {
		saved = true
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).Set("next_url", "/dashboard")
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})

	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if !saved {
		t.Fatal("expected session to be saved")
	}
	if cookie := w.Result().Header.Get("Set-Cookie"); cookie == "" {
		t.Fatal("expected a session cookie on the redirect")
	}
}

func TestErrorLoadingSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "session_id=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if status := w.Result().StatusCode; status != http.StatusInternalServerError {
		t.Fatalf("expected status '500' got '%d'", status)
	}
}

func TestErrorSaveSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(string, []byte, time.Time) error {
		return errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).Set("hello", "world")
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "session_id=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
}

func TestDestroySession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(string, []byte, time.Time) error {
		t.Fatal("set called")
		return nil
	}

	var called bool
	store.delete = func(string) error {
		called = true
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).Destroy()
		w.Write([]byte("hello world"))
	})

	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", &bytes.Buffer{}))

	if !called {
		t.Fatal("expected delete to be called")
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store, session.WithIdleTimeout(10*time.Minute))

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, httptest.NewRequest("POST", "/", &bytes.Buffer{}))

	cookie := w.Result().Cookies()[0]
	expected := time.Now().Add(11 * time.Minute)
	if cookie.Expires.After(expected) {
		t.Fatalf("expected cookie expiration '%s' to be before '%s'", cookie.Expires.UTC(), expected.UTC())
	}
}

func TestSessionValues(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(token string, data []byte, _ time.Time) error {
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if v := sess.Get("key"); v != nil {
			t.Fatalf("expected 'nil' got '%v'", v)
		}

		sess.Set("int", 1)
		sess.Set("string", "hello")
		sess.Set("bool", true)

		if v := sess.GetInt("int"); v != 1 {
			t.Fatalf("expected '1' got '%d'", v)
		}

		if v := sess.GetString("string"); v != "hello" {
			t.Fatalf("expected 'hello' got '%s'", v)
		}

		if v := sess.GetBool("bool"); v != true {
			t.Fatalf("expected 'true' got '%v'", v)
		}

		keys := sess.Keys()
		if len(keys) != 3 || keys[0] != "bool" || keys[2] != "string" {
			t.Fatalf("expected sorted keys got '%v'", keys)
		}

		sess.Delete("bool")
		if v := sess.GetBool("bool"); v != false {
			t.Fatalf("expected 'false' got '%v'", v)
		}
	})

	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", &bytes.Buffer{}))
}

func TestGobCodecRoundTrip(t *testing.T) {
	type entry struct {
		Body      []byte
		ExpiresAt time.Time
	}
	session.Register(map[string]entry{})

	created := time.Now().Truncate(time.Second)
	data, err := session.GobCodec{}.Encode(created, map[string]any{
		"cache": map[string]entry{"k": {Body: []byte("{}"), ExpiresAt: created}},
	})
	if err != nil {
		t.Fatal(err)
	}

	gotCreated, values, err := session.GobCodec{}.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !gotCreated.Equal(created) {
		t.Fatalf("expected '%s' got '%s'", created, gotCreated)
	}
	cache, ok := values["cache"].(map[string]entry)
	if !ok || string(cache["k"].Body) != "{}" {
		t.Fatalf("unexpected cache value '%v'", values["cache"])
	}
}

func TestRenewSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		data, _ := session.GobCodec{}.Encode(time.Now(), map[string]any{"hello": "world"})
		return data, true, nil
	}

	var deleted, saved string
	store.delete = func(token string) error {
		deleted = token
		return nil
	}
	store.set = func(token string, _ []byte, _ time.Time) error {
		saved = token
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Renew()
		if id := sess.GetID(); id == "abc123" {
			t.Fatal("expected a new session id")
		}
		if v := sess.GetString("hello"); v != "world" {
			t.Fatalf("expected 'world' got '%s'", v)
		}
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", "session_id=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if deleted != "abc123" {
		t.Fatalf("expected 'abc123' to be deleted got '%s'", deleted)
	}
	if saved == "" || saved == "abc123" {
		t.Fatalf("expected data saved under a new id got '%s'", saved)
	}

	cookie := w.Result().Cookies()[0]
	if cookie.Value != saved {
		t.Fatalf("expected cookie '%s' got '%s'", saved, cookie.Value)
	}
}

func TestRenewDestroyedSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		data, _ := session.GobCodec{}.Encode(time.Now(), map[string]any{})
		return data, true, nil
	}

	var deleted []string
	store.delete = func(token string) error {
		deleted = append(deleted, token)
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Renew()
		sess.Destroy()
	})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", "session_id=abc123;")
	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), r)

	if len(deleted) != 2 || deleted[0] != "abc123" {
		t.Fatalf("expected old and new ids deleted got '%v'", deleted)
	}
}
