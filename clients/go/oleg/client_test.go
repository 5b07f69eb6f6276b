package oleg

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			var c credentials
			json.NewDecoder(r.Body).Decode(&c)
			if c.Username != "alice" || c.Password != "hunter22" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid username or password"}`))
				return
			}
			w.Write([]byte(`{"token":"tok-1","username":"alice"}`))
		case "/api/guilds":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`[{"id":"g1","name":"alice's Server","owner":"alice"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "")
	if _, err := c.Login("alice", "wrong"); err == nil {
		t.Fatalf("expected login failure")
	}
	token, err := c.Login("alice", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token != "tok-1" || c.Token != "tok-1" {
		t.Fatalf("token = %q / %q", token, c.Token)
	}

	guilds, err := c.ListGuilds()
	if err != nil {
		t.Fatalf("guilds: %v", err)
	}
	if len(guilds) != 1 || guilds[0].Owner != "alice" {
		t.Fatalf("guilds = %+v", guilds)
	}
}

func TestErrorCarriesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"forbidden","reason":"forbidden"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").Export()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.Status != http.StatusForbidden || e.Reason != "forbidden" {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestImportSendsSnapshot(t *testing.T) {
	snapshot := []byte(`{"users":{}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != "POST" || string(body) != string(snapshot) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.Write([]byte(`{"users":3,"guilds":2}`))
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL, "tok").Import(snapshot)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Users != 3 || stats.Guilds != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHealthDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL, "").Health()
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "degraded" {
		t.Fatalf("status = %q", h.Status)
	}
}
