package blob

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oleg-messenger/oleg/internal/apperr"
)

func TestSaveAndOpen(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	att, err := s.Save(ctx, []byte("hello"), Meta{Name: "../notes.TXT", Type: "text/plain"})
	if err != nil {
		t.Fatal(err)
	}
	if att.Name != "notes.TXT" || att.Size != 5 || att.Type != "text/plain" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if !strings.HasPrefix(att.URL, URLPrefix) || !strings.HasSuffix(att.URL, ".txt") {
		t.Fatalf("unexpected url %q", att.URL)
	}

	data, err := s.Open(ctx, att.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestSaveValidation(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"no extension", "README", []byte("x")},
		{"bad extension", "run.exe", []byte("x")},
		{"empty", "a.png", nil},
		{"too large", "a.png", make([]byte, MaxSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Save(context.Background(), tt.data, Meta{Name: tt.file}); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, url := range []string{"/files/../etc/passwd", "/files/", "/files/.hidden", "/files/missing.png"} {
		if _, err := s.Open(context.Background(), url); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", url, err)
		}
	}
}
