package station

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSQLiteAliasStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "station.db")
	store, err := OpenSQLiteAliasStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteAliasStore: %v", err)
	}
	ctx := context.Background()

	alias, err := store.LoadAlias(ctx)
	if err != nil {
		t.Fatalf("LoadAlias: %v", err)
	}
	if alias != "" {
		t.Errorf("fresh alias = %q, want empty", alias)
	}

	if err := store.SaveAlias(ctx, "Rower Corner"); err != nil {
		t.Fatalf("SaveAlias: %v", err)
	}
	if err := store.SaveAlias(ctx, "S1"); err != nil {
		t.Fatalf("SaveAlias overwrite: %v", err)
	}
	store.Close()

	// survives reopen
	store, err = OpenSQLiteAliasStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	alias, err = store.LoadAlias(ctx)
	if err != nil {
		t.Fatalf("LoadAlias after reopen: %v", err)
	}
	if alias != "S1" {
		t.Errorf("alias = %q, want S1", alias)
	}
}

func TestCleanAlias(t *testing.T) {
	got, err := CleanAlias("  S1 ")
	if err != nil || got != "S1" {
		t.Errorf("CleanAlias = %q, %v", got, err)
	}
	if _, err := CleanAlias(strings.Repeat("x", MaxAliasLength+1)); !errors.Is(err, ErrInvalidAlias) {
		t.Errorf("long alias err = %v, want ErrInvalidAlias", err)
	}
}

func TestPairingCode(t *testing.T) {
	code := NewPairingCode()
	if len(code) != PairingCodeLength {
		t.Fatalf("len = %d, want %d", len(code), PairingCodeLength)
	}
	if strings.ToUpper(code) != code {
		t.Errorf("code %q not upper case", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(pairingAlphabet, r) {
			t.Errorf("code %q has %q outside the alphabet", code, r)
		}
	}

	id := uuid.MustParse("00010203-0405-0607-0809-0a0b0c0d0e0f")
	if got := pairingCode(id); got != "012345" {
		t.Errorf("pairingCode = %q, want 012345", got)
	}
}
