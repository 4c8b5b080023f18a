package worldtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"steading.world/internal/sim/catalogs"
)

func TestSchemas_ShippedConfigsValidate(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	loadJSON := func(name string) any {
		t.Helper()
		raw, err := os.ReadFile(filepath.Join("..", "..", "..", "configs", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", name, err)
		}
		return v
	}

	if err := compile("crops.schema.json").Validate(loadJSON("crops.json")); err != nil {
		t.Fatalf("crops.json: %v", err)
	}
	if err := compile("steading.schema.json").Validate(loadJSON("steading.json")); err != nil {
		t.Fatalf("steading.json: %v", err)
	}

	// The shipped configs must also survive the loader's own validation.
	if _, err := catalogs.Load(filepath.Join("..", "..", "..", "configs")); err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
}

func TestSchemas_DayRecordsValidate(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "day_record.schema.json"))
	if err != nil {
		t.Fatalf("compile day_record.schema.json: %v", err)
	}

	h := NewHarness(t, harnessConfig(), harnessCatalogs(
		catalogs.FarmDef{ID: "F1", Kind: "WHEAT", Steward: "ashford", Active: true, ResolvedYield: 20},
	))
	h.Spend("ashford", 5) // denied pre-calendar spend, recorded with a code
	h.AdvanceDays(8)

	for _, rec := range h.Days {
		raw, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal day %d: %v", rec.Day, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal day %d: %v", rec.Day, err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("day %d: %v", rec.Day, err)
		}
	}
}
