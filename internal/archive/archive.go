// Package archive keeps battle reports as zstd-compressed JSON lines, one
// file per rotation period.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/warhost/simcore/internal/queue"
	"github.com/warhost/simcore/pkg/core"
)

const (
	// DefaultRotate starts a new file every hour.
	DefaultRotate = time.Hour
	// FlushInterval is how often queued reports are written out.
	FlushInterval = time.Second

	filePrefix = "battles"
	periodFmt  = "2006-01-02T15-04"
)

// Writer queues reports and drains them to disk in the background. Write
// never touches the filesystem, so it is safe to call from the tick path.
type Writer struct {
	dir    string
	rotate time.Duration
	log    *slog.Logger

	pending *queue.Queue[core.BattleReport]

	mu        sync.Mutex
	curPeriod string
	f         *os.File
	enc       *zstd.Encoder
	w         *bufio.Writer

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a writer rooted at dir. A rotate of zero or less uses
// DefaultRotate.
func New(dir string, rotate time.Duration, log *slog.Logger) (*Writer, error) {
	if rotate <= 0 {
		rotate = DefaultRotate
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &Writer{
		dir:     dir,
		rotate:  rotate,
		log:     log,
		pending: queue.New[core.BattleReport](),
	}, nil
}

// Write queues a report for the next flush.
func (w *Writer) Write(report core.BattleReport) error {
	w.pending.Push(report)
	return nil
}

// Start launches the background flush loop. Close stops it.
func (w *Writer) Start() {
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopChan:
				return
			case <-ticker.C:
				if err := w.Flush(); err != nil {
					w.log.Error("archive flush failed", "error", err)
				}
			}
		}
	}()
}

// Flush writes every queued report and pushes it through the compressor, so
// a flushed report survives a crash. Reports that fail to encode are logged
// and dropped; reports hit by an I/O error are queued again in order.
func (w *Writer) Flush() error {
	if w.pending.Empty() {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	items := w.pending.Drain()
	for i, r := range items {
		line, err := json.Marshal(r)
		if err != nil {
			w.log.Error("dropping battle report that cannot be encoded", "report_id", r.ID, "error", err)
			continue
		}
		if err := w.writeLocked(r.ResolvedAt, line); err != nil {
			w.pending.PushFront(items[i:]...)
			return err
		}
	}
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// Close stops the flush loop, writes what is left and closes the current file.
func (w *Writer) Close() error {
	w.stopOnce.Do(func() {
		if w.stopChan != nil {
			close(w.stopChan)
			<-w.done
		}
	})

	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.closeLocked(); err != nil {
		return err
	}
	return flushErr
}

func (w *Writer) writeLocked(resolvedAt time.Time, line []byte) error {
	period := resolvedAt.UTC().Truncate(w.rotate).Format(periodFmt)
	if period != w.curPeriod {
		if err := w.rotateLocked(period); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *Writer) rotateLocked(period string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	f, err := os.OpenFile(PathFor(w.dir, period), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curPeriod = period
	w.log.Debug("archive rotated", "period", period)
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curPeriod = ""
	return err
}

// PathFor returns the archive file of a rotation period.
func PathFor(dir, period string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", filePrefix, period))
}

// ReadFile decodes every report of one archive file.
func ReadFile(path string) ([]core.BattleReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var reports []core.BattleReport
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r core.BattleReport
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		reports = append(reports, r)
	}
	return reports, scanner.Err()
}
