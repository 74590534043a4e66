package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// kvContract exercises the behaviors every KV backend must share.
func kvContract(t *testing.T, kv KV) {
	t.Helper()

	if _, err := kv.Get("missing"); !fault.Is(err, fault.NotFound) {
		t.Errorf("Get missing: error = %v, want not_found", err)
	}

	if err := kv.Set("assembly_1", []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := kv.Get("assembly_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "one" {
		t.Errorf("Get = %q, want %q", got, "one")
	}

	// Overwrite.
	kv.Set("assembly_1", []byte("two"))
	if got, _ := kv.Get("assembly_1"); string(got) != "two" {
		t.Errorf("after overwrite Get = %q, want %q", got, "two")
	}

	// Prefix scan is sorted and scoped.
	kv.Set("backup_1_100", []byte("b1"))
	kv.Set("backup_1_200", []byte("b2"))
	kv.Set("backup_2_100", []byte("b3"))
	keys, err := kv.Keys("backup_1_")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"backup_1_100", "backup_1_200"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	// Delete is idempotent.
	if err := kv.Delete("assembly_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete("assembly_1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := kv.Get("assembly_1"); !fault.Is(err, fault.NotFound) {
		t.Errorf("Get after delete: error = %v, want not_found", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	kvContract(t, m)
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMemory_ValueIsolation(t *testing.T) {
	m := NewMemory()
	buf := []byte("original")
	m.Set("k", buf)
	buf[0] = 'X'

	got, _ := m.Get("k")
	if string(got) != "original" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := m.Get("k")
	if string(again) != "original" {
		t.Errorf("returned value aliased store buffer: %q", again)
	}
}

func TestBadger_InMemory(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer b.Close()
	kvContract(t, b)
}

func TestBadger_Persistent(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := b.Set("assembly_x", []byte("payload")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and read back.
	b, err = OpenBadger(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	got, err := b.Get("assembly_x")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want %q", got, "payload")
	}
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Error("expected error for persistent store without path")
	}
}
