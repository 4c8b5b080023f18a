package weekly

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"steading.world/internal/sim/world"
)

// WriteReport writes one week's report under dataDir/weeks. The file name
// is stable per week, so a rewrite overwrites rather than duplicates.
func WriteReport(dataDir string, rec world.WeekRecord) (string, error) {
	dir := filepath.Join(dataDir, "weeks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("week-%06d.json", rec.Week))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func ReadReport(path string) (world.WeekRecord, error) {
	var rec world.WeekRecord
	b, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// ListReports returns report paths under dataDir/weeks in week order. A
// missing weeks directory lists as empty.
func ListReports(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "weeks")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "week-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}
