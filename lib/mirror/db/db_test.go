package db

import (
	"errors"
	"testing"
)

func TestNewUnknownType(t *testing.T) {
	s, err := New("mysql", "mysql://localhost")
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %e", err)
	}

	if s != nil {
		t.Errorf("expected no store for an unknown type, got %+v", s)
	}
}

func TestNewPostgres(t *testing.T) {
	// sql.Open validates lazily, so opening and closing needs no running server
	s, err := New(POSTGRES, "postgres://localhost/mirror?sslmode=disable")
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if err = Close(POSTGRES, s); err != nil {
		t.Errorf("Error closing postgres mirror:%e", err)
	}
}
