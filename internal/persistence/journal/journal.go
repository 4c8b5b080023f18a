package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"steading.world/internal/sim/world"
)

const FormatV1 = "steading-journal/1"

// Meta identifies the simulation a journal belongs to. Every segment starts
// with a header line carrying it, so a reader can refuse records produced
// under different catalogs.
type Meta struct {
	Steading       string
	CropsDigest    string
	ScenarioDigest string
}

type Header struct {
	Format         string `json:"format"`
	Steading       string `json:"steading"`
	CropsDigest    string `json:"crops_digest"`
	ScenarioDigest string `json:"scenario_digest"`
	WrittenAt      string `json:"written_at,omitempty"`
}

// Writer appends JSONL records to zstd-compressed segments, rotating when
// the time stamp derived from layout changes.
type Writer struct {
	baseDir string
	prefix  string
	layout  string
	meta    Meta

	onRotate func(closedPath string)

	mu       sync.Mutex
	curStamp string
	curPath  string
	f        *os.File
	enc      *zstd.Encoder
	w        *bufio.Writer
}

func NewWriter(baseDir, prefix, layout string, meta Meta) *Writer {
	if layout == "" {
		layout = "2006-01-02-15"
	}
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		layout:  layout,
		meta:    meta,
	}
}

// SetRotateHook installs fn to run with the path of each segment after it
// is closed. Set it before the first Write.
func (w *Writer) SetRotateHook(fn func(closedPath string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRotate = fn
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp := time.Now().UTC().Format(w.layout)
	if stamp != w.curStamp {
		if err := w.rotateLocked(stamp); err != nil {
			return err
		}
	}

	return w.writeLineLocked(v)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) writeLineLocked(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(stamp string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}

	path := w.pathForStamp(stamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curStamp = stamp
	w.curPath = path

	return w.writeLineLocked(Header{
		Format:         FormatV1,
		Steading:       w.meta.Steading,
		CropsDigest:    w.meta.CropsDigest,
		ScenarioDigest: w.meta.ScenarioDigest,
		WrittenAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil

	if w.curPath != "" && w.onRotate != nil {
		w.onRotate(w.curPath)
	}
	w.curPath = ""
	return err1
}

func (w *Writer) pathForStamp(stamp string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, stamp))
}

// DayLogger writes one compressed JSONL entry per simulated day. It
// satisfies world.DayLogger.
type DayLogger struct{ w *Writer }

func NewDayLogger(dataDir, layout string, meta Meta) *DayLogger {
	return &DayLogger{w: NewWriter(filepath.Join(dataDir, "journal"), "days", layout, meta)}
}

func (l *DayLogger) WriteDay(rec world.DayRecord) error   { return l.w.Write(rec) }
func (l *DayLogger) SetRotateHook(fn func(closed string)) { l.w.SetRotateHook(fn) }
func (l *DayLogger) Close() error                         { return l.w.Close() }
