package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"steading.world/internal/sim/world"
)

func testMeta() Meta {
	return Meta{Steading: "test", CropsDigest: "c1", ScenarioDigest: "s1"}
}

func TestDayLoggerRoundtrip(t *testing.T) {
	dir := t.TempDir()

	l := NewDayLogger(dir, "2006-01-02", testMeta())
	var closed []string
	l.SetRotateHook(func(path string) { closed = append(closed, path) })

	want := []world.DayRecord{
		{Day: 1, Week: 0, Farms: 2, Productions: []world.RecordedProduction{{Steward: "ashford", Week: 0, Sum: 35, Farms: 2}}, Digest: "d1"},
		{Day: 2, Week: 0, Farms: 2, Spends: []world.RecordedSpend{{Steward: "ashford", Amount: 5, Source: "admin", OK: true, Available: 30}}, Digest: "d2"},
		{Day: 3, Week: 0, Farms: 3, FarmEvents: []world.RecordedFarm{{ID: "F3", Steward: "ashford", Kind: "WHEAT", Active: true, Yield: 20, OK: true}}, Digest: "d3"},
	}
	for _, rec := range want {
		if err := l.WriteDay(rec); err != nil {
			t.Fatalf("write day %d: %v", rec.Day, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(closed) != 1 {
		t.Fatalf("rotate hook fired %d times, want 1", len(closed))
	}
	if !strings.HasSuffix(closed[0], ".jsonl.zst") {
		t.Fatalf("closed path = %s", closed[0])
	}

	var got []world.DayRecord
	hdr, err := Read(filepath.Join(dir, "journal"), func(rec world.DayRecord) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hdr.Format != FormatV1 || hdr.Steading != "test" || hdr.CropsDigest != "c1" || hdr.ScenarioDigest != "s1" {
		t.Fatalf("header = %+v", hdr)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("records mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func writeSegment(t *testing.T, path string, lines ...any) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	for _, v := range lines {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, err := enc.Write(append(b, '\n')); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestReadOrdersSegmentsAndRejectsMismatch(t *testing.T) {
	dir := t.TempDir()

	h := Header{Format: FormatV1, Steading: "test", CropsDigest: "c1", ScenarioDigest: "s1"}
	writeSegment(t, filepath.Join(dir, "days-0001.jsonl.zst"), h,
		world.DayRecord{Day: 1, Digest: "d1"},
		world.DayRecord{Day: 2, Digest: "d2"},
	)
	writeSegment(t, filepath.Join(dir, "days-0002.jsonl.zst"), h,
		world.DayRecord{Day: 3, Digest: "d3"},
	)

	var days []int
	if _, err := Read(dir, func(rec world.DayRecord) error {
		days = append(days, rec.Day)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(days, []int{1, 2, 3}) {
		t.Fatalf("days = %v", days)
	}

	// A segment written under different catalogs must be refused.
	bad := h
	bad.CropsDigest = "c2"
	writeSegment(t, filepath.Join(dir, "days-0003.jsonl.zst"), bad,
		world.DayRecord{Day: 4, Digest: "d4"},
	)
	if _, err := Read(dir, func(world.DayRecord) error { return nil }); err == nil {
		t.Fatalf("expected header mismatch error")
	}
}

func TestReadRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, filepath.Join(dir, "days-0001.jsonl.zst"),
		Header{Format: "steading-journal/99", Steading: "test"},
	)
	if _, err := Read(dir, func(world.DayRecord) error { return nil }); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestReadEmptyDir(t *testing.T) {
	if _, err := Read(t.TempDir(), func(world.DayRecord) error { return nil }); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
