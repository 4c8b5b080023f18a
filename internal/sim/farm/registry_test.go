package farm

import "testing"

func TestUpsertInsertsAndReplaces(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Record{ID: "F1", Steward: "P1", Active: true, Yield: 20})
	if got := r.Len(); got != 1 {
		t.Fatalf("len after insert: got %d want 1", got)
	}

	// Same ID replaces wholesale.
	r.Upsert(Record{ID: "F1", Steward: "P1", Active: true, Yield: 35})
	if got := r.Len(); got != 1 {
		t.Fatalf("len after replace: got %d want 1", got)
	}
	rec, ok := r.Get("F1")
	if !ok || rec.Yield != 35 {
		t.Fatalf("replaced record: got %+v ok=%v want yield 35", rec, ok)
	}

	// Identical upsert is idempotent.
	r.Upsert(Record{ID: "F1", Steward: "P1", Active: true, Yield: 35})
	if got := r.Len(); got != 1 {
		t.Fatalf("len after idempotent upsert: got %d want 1", got)
	}
}

func TestActiveByStewardFilters(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Record{ID: "F2", Steward: "P1", Active: true, Yield: 40})
	r.Upsert(Record{ID: "F1", Steward: "P1", Active: true, Yield: 20})
	r.Upsert(Record{ID: "F3", Steward: "P1", Active: false, Yield: 99})
	r.Upsert(Record{ID: "F4", Steward: "P2", Active: true, Yield: 7})

	got := r.ActiveBySteward("P1")
	if len(got) != 2 {
		t.Fatalf("active farms for P1: got %d want 2", len(got))
	}
	if got[0].ID != "F1" || got[1].ID != "F2" {
		t.Fatalf("order: got [%s %s] want [F1 F2]", got[0].ID, got[1].ID)
	}
	sum := 0
	for _, rec := range got {
		sum += rec.Yield
	}
	if sum != 60 {
		t.Fatalf("yield sum: got %d want 60", sum)
	}

	if got := r.ActiveBySteward("P3"); len(got) != 0 {
		t.Fatalf("unknown steward: got %d records want 0", len(got))
	}
}

func TestAllSortedByID(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Record{ID: "FB"})
	r.Upsert(Record{ID: "FA"})
	r.Upsert(Record{ID: "FC"})
	all := r.All()
	if len(all) != 3 || all[0].ID != "FA" || all[1].ID != "FB" || all[2].ID != "FC" {
		t.Fatalf("All order: got %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
}
