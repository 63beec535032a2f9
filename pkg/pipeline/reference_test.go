package pipeline

import (
	"path/filepath"
	"testing"
)

func TestLoadReferenceCSV(t *testing.T) {
	path := writeRefCSV(t, "ingredient,impact\nRefined Sugar,10\nHimalayan Salt,2.5\n\nMalformed Row Without Impact\n")
	ref, err := LoadReferenceCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ref.Len() != 3 {
		t.Fatalf("rows = %d, want 3", ref.Len())
	}
	if !ref.HasImpact() {
		t.Fatal("impact column should be detected")
	}
	names, impact, any := ref.Match("sugar")
	if len(names) != 1 || names[0] != "Refined Sugar" {
		t.Fatalf("match names = %v", names)
	}
	if !any || impact != 10 {
		t.Fatalf("impact = %f any=%v, want 10 true", impact, any)
	}
}

func TestLoadReferenceCSVMissingFile(t *testing.T) {
	if _, err := LoadReferenceCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReferenceMatchCaseInsensitive(t *testing.T) {
	path := writeRefCSV(t, "ingredient\nWHOLE MILK\n")
	ref, err := LoadReferenceCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names, _, any := ref.Match("milk")
	if len(names) != 1 || names[0] != "WHOLE MILK" {
		t.Fatalf("match = %v", names)
	}
	if any {
		t.Fatal("table without impact column must not report impact")
	}
}

func TestTableStoreSwap(t *testing.T) {
	var store TableStore
	if store.Current() != nil {
		t.Fatal("fresh store should hold no table")
	}
	path := writeRefCSV(t, "ingredient\nOats\n")
	ref, err := LoadReferenceCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store.Swap(ref)
	if store.Current() != ref {
		t.Fatal("swap did not take effect")
	}
	store.Swap(nil)
	if store.Current() != nil {
		t.Fatal("swap to nil should clear the table")
	}
}
