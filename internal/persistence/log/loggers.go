package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"veinlocate.ai/internal/sim/command"
)

const hourLayout = "2006-01-02-15"

// segment is one open hourly file. Each open appends a new zstd frame, so a
// file reopened after restart is still one valid concatenated stream.
type segment struct {
	hour string
	file *os.File
	enc  *zstd.Encoder
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &segment{hour: hour, file: file, enc: enc}, nil
}

// appendLine writes line plus a newline and flushes the frame block, so a
// crash loses at most the line in flight.
func (s *segment) appendLine(line []byte) error {
	if _, err := s.enc.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.enc.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.enc.Close(), s.file.Close())
}

// HourlyLog appends JSON lines to <dir>/<name>-YYYY-MM-DD-HH.jsonl.zst,
// starting a new file whenever the UTC hour changes.
type HourlyLog struct {
	dir  string
	name string
	now  func() time.Time

	mu  sync.Mutex
	cur *segment
}

func NewHourlyLog(dir, name string) *HourlyLog {
	return &HourlyLog{dir: dir, name: name, now: time.Now}
}

func (h *HourlyLog) path(hour string) string {
	return filepath.Join(h.dir, h.name+"-"+hour+".jsonl.zst")
}

// Append encodes v before touching the file so a marshal error leaves the
// current segment untouched.
func (h *HourlyLog) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	hour := h.now().UTC().Format(hourLayout)
	if h.cur == nil || h.cur.hour != hour {
		if err := h.swapLocked(hour); err != nil {
			return err
		}
	}
	return h.cur.appendLine(line)
}

func (h *HourlyLog) swapLocked(hour string) error {
	if h.cur != nil {
		err := h.cur.close()
		h.cur = nil
		if err != nil {
			return err
		}
	}
	seg, err := openSegment(h.path(hour), hour)
	if err != nil {
		return err
	}
	h.cur = seg
	return nil
}

func (h *HourlyLog) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return nil
	}
	err := h.cur.close()
	h.cur = nil
	return err
}

// QueryLogger writes one compressed JSONL entry per executed query.
type QueryLogger struct{ w *HourlyLog }

func NewQueryLogger(dataDir string) *QueryLogger {
	return &QueryLogger{w: NewHourlyLog(filepath.Join(dataDir, "queries"), "queries")}
}

func (l *QueryLogger) WriteQuery(r command.QueryRecord) error { return l.w.Append(r) }
func (l *QueryLogger) Close() error                           { return l.w.Close() }
