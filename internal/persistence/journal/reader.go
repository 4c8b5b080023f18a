package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"steading.world/internal/sim/world"
)

// Read streams every day record under dir in segment order and returns the
// journal header. Every segment must carry the same header; fn aborts the
// read by returning an error.
func Read(dir string, fn func(rec world.DayRecord) error) (Header, error) {
	files, err := listSegments(dir)
	if err != nil {
		return Header{}, err
	}
	if len(files) == 0 {
		return Header{}, fmt.Errorf("no journal segments in %s", dir)
	}

	var first Header
	for i, path := range files {
		hdr, err := readSegment(path, fn)
		if err != nil {
			return Header{}, err
		}
		if i == 0 {
			first = hdr
			continue
		}
		if hdr != first {
			return Header{}, fmt.Errorf("%s: header mismatch: %+v vs %+v", filepath.Base(path), hdr, first)
		}
	}
	return first, nil
}

func listSegments(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "days-") && strings.HasSuffix(name, ".jsonl.zst") {
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

func readSegment(path string, fn func(rec world.DayRecord) error) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Header{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return Header{}, fmt.Errorf("%s: empty segment", filepath.Base(path))
	}
	var hdr Header
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return Header{}, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if hdr.Format != FormatV1 {
		return Header{}, fmt.Errorf("%s: unsupported format %q", filepath.Base(path), hdr.Format)
	}
	// WrittenAt varies per segment and must not affect header comparison.
	hdr.WrittenAt = ""

	for sc.Scan() {
		var rec world.DayRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return Header{}, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(rec); err != nil {
			return Header{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Header{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return hdr, nil
}
