package signature

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		"44D88612FEA8A8F36DE82E1278ABB02F": "Trojan.Generic",
	})
	defer store.Close()

	threat, ok := store.Lookup("44d88612fea8a8f36de82e1278abb02f")
	if !ok || threat != "Trojan.Generic" {
		t.Errorf("Lookup() = (%q, %v), want Trojan.Generic", threat, ok)
	}
	if _, ok := store.Lookup("0000000000000000000000000000dead"); ok {
		t.Errorf("Lookup() matched an unknown digest")
	}
}

func TestDefaultStoreSeeded(t *testing.T) {
	store := DefaultStore()
	defer store.Close()
	if store.Len() == 0 {
		t.Fatalf("DefaultStore() is empty")
	}
	if threat, ok := store.Lookup("e6d290a03b70cfa5d4451da444bdea39"); !ok || threat != "Ransomware.Crypto" {
		t.Errorf("Lookup() = (%q, %v), want Ransomware.Crypto", threat, ok)
	}
}

func TestOpenSQLiteInMemory(t *testing.T) {
	store, err := OpenSQLite("")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()

	// in-memory store is seeded with the builtin sample set
	if threat, ok := store.Lookup("81891b0d3cbb89c1e044b8c5c504c83a"); !ok || threat != "Worm.Win32" {
		t.Errorf("Lookup() = (%q, %v), want Worm.Win32", threat, ok)
	}

	if err := store.Add(map[string]string{"ABCDEF0123456789": "Backdoor.SSH"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if threat, ok := store.Lookup("abcdef0123456789"); !ok || threat != "Backdoor.SSH" {
		t.Errorf("Lookup() after Add = (%q, %v)", threat, ok)
	}
}

func TestOpenSQLiteMissingFile(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db"))
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("OpenSQLite() error = %v, want ErrStoreNotFound", err)
	}
}
