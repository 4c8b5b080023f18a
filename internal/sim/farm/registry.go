package farm

import "sort"

// Record describes one farm plot. Pos and Cell locate it in the settlement
// and are carried for operator surfaces only; production sums ignore them.
type Record struct {
	ID      string
	Pos     [2]float64
	Cell    [2]int
	Active  bool
	Steward string
	Yield   int
}

// Registry holds farm records keyed by ID.
type Registry struct {
	farms map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{farms: map[string]Record{}}
}

// Upsert inserts rec or replaces the existing record with the same ID.
func (r *Registry) Upsert(rec Record) {
	r.farms[rec.ID] = rec
}

// Get returns the record stored under id.
func (r *Registry) Get(id string) (Record, bool) {
	rec, ok := r.farms[id]
	return rec, ok
}

func (r *Registry) Len() int {
	return len(r.farms)
}

// ActiveBySteward returns the active farms owned by steward, sorted by ID.
// Callers that only sum yields don't care about order; the sort keeps
// journal and digest output stable across runs.
func (r *Registry) ActiveBySteward(steward string) []Record {
	out := make([]Record, 0, len(r.farms))
	for _, rec := range r.farms {
		if rec.Active && rec.Steward == steward {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every record sorted by ID.
func (r *Registry) All() []Record {
	out := make([]Record, 0, len(r.farms))
	for _, rec := range r.farms {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
