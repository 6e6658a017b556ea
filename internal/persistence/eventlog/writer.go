// Package eventlog exports log events as zstd-compressed JSON lines, one file
// per window of ticks.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/sosim/internal/model"
)

// DefaultTicksPerFile is used when a writer is created with a non-positive
// window.
const DefaultTicksPerFile = 1000

// Writer appends events to <dir>/<prefix>-<firstTick>.jsonl.zst, starting a
// new file whenever a tick falls outside the current window.
type Writer struct {
	dir          string
	prefix       string
	ticksPerFile int

	mu       sync.Mutex
	curStart int
	f        *os.File
	enc      *zstd.Encoder
	w        *bufio.Writer
}

// NewWriter creates a writer. Nothing is opened until the first Record.
func NewWriter(dir, prefix string, ticksPerFile int) *Writer {
	if ticksPerFile <= 0 {
		ticksPerFile = DefaultTicksPerFile
	}
	return &Writer{dir: dir, prefix: prefix, ticksPerFile: ticksPerFile, curStart: -1}
}

// Record implements engine.Sink.
func (w *Writer) Record(tick int, ur model.UpdateResult) error {
	if len(ur.Events) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if start := w.windowStart(tick); start != w.curStart {
		if err := w.rotateLocked(start); err != nil {
			return err
		}
	}

	for _, ev := range ur.Events {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(b); err != nil {
			return err
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// windowStart returns the first tick of the window holding tick. Ticks start
// at 1.
func (w *Writer) windowStart(tick int) int {
	if tick < 1 {
		return 0
	}
	return (tick-1)/w.ticksPerFile*w.ticksPerFile + 1
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(start int) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathFor(start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.curStart = start
	return nil
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
	w.curStart = -1
	return err1
}

// PathFor returns the file holding the window that starts at start.
func (w *Writer) PathFor(start int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%08d.jsonl.zst", w.prefix, start))
}

// Files lists the export files for prefix in dir, in tick order.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes every event in one export file.
func ReadFile(path string) ([]model.LogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd %s: %w", path, err)
	}
	defer dec.Close()

	var events []model.LogEvent
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev model.LogEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return events, fmt.Errorf("%s line %d: %w", path, len(events)+1, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
