package classify

import "testing"

func newTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tbl
}

func TestNewTable_NegativeSize(t *testing.T) {
	if _, err := NewTable(-1); err == nil {
		t.Fatal("expected error for negative size hint")
	}
}

func TestNewTable_ZeroSize(t *testing.T) {
	tbl, err := NewTable(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tbl.Classify("10.0.0.1", "701")
	if tbl.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", tbl.Len())
	}
}

func TestClassify_UnknownDoesNotClobberKnown(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("130.209.240.1", "701")
	tbl.Classify("130.209.240.1", Unknown)

	v, ok := tbl.Get("130.209.240.1")
	if !ok {
		t.Fatal("expected entry")
	}
	if v != "701" {
		t.Errorf("expected '701', got '%s'", v)
	}
}

func TestClassify_KnownReplacesUnknown(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("130.209.240.1", Unknown)
	tbl.Classify("130.209.240.1", "701")

	v, _ := tbl.Get("130.209.240.1")
	if v != "701" {
		t.Errorf("expected '701', got '%s'", v)
	}
}

func TestClassify_LastKnownWins(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("130.209.240.1", "701")
	tbl.Classify("130.209.240.1", "786")
	tbl.Classify("130.209.240.1", Unknown)

	v, _ := tbl.Get("130.209.240.1")
	if v != "786" {
		t.Errorf("expected '786', got '%s'", v)
	}
}

func TestClassify_FirstWriteCreatesUnknown(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("8.8.8.8", Unknown)

	v, ok := tbl.Get("8.8.8.8")
	if !ok || v != Unknown {
		t.Errorf("expected unknown entry, got %q (ok=%v)", v, ok)
	}
}

func TestGet_Missing(t *testing.T) {
	tbl := newTable(t)
	if _, ok := tbl.Get("1.1.1.1"); ok {
		t.Error("expected no entry")
	}
}

func TestEntries_InsertionOrder(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("3.3.3.3", Unknown)
	tbl.Classify("1.1.1.1", "13335")
	tbl.Classify("2.2.2.2", Unknown)
	tbl.Classify("3.3.3.3", "16509")

	entries := tbl.Entries()
	want := []Entry{
		{"3.3.3.3", "16509"},
		{"1.1.1.1", "13335"},
		{"2.2.2.2", Unknown},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], entries[i])
		}
	}

	// Mutating the copy must not touch the table.
	entries[0].Value = "1"
	if v, _ := tbl.Get("3.3.3.3"); v != "16509" {
		t.Errorf("table mutated through Entries copy: %q", v)
	}
}

func TestKnown_DistinctFirstSeen(t *testing.T) {
	tbl := newTable(t)
	tbl.Classify("10.0.0.1", "701")
	tbl.Classify("10.0.0.2", Unknown)
	tbl.Classify("10.0.0.3", "3356")
	tbl.Classify("10.0.0.4", "701")

	known := tbl.Known()
	if len(known) != 2 || known[0] != "701" || known[1] != "3356" {
		t.Errorf("expected [701 3356], got %v", known)
	}
}
