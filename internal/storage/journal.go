// Package storage writes the outcome journal.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"gopkg.in/natefinch/lumberjack.v2"
)

const outcomesDir = "outcomes"

var (
	ErrClosed     = errors.New("journal is closed")
	ErrBufferFull = errors.New("journal buffer full")
)

// Journal appends ActionOutcomes as JSON lines under
// baseDir/<UTC date>/outcomes/<start unix>.jsonl. Writes are queued and
// flushed by one goroutine; a full queue drops the record.
type Journal struct {
	baseDir   string
	maxSizeMB int
	startedAt int64
	writeCh   chan invoker.ActionOutcome
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	now         func() time.Time
}

func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		startedAt: time.Now().Unix(),
		writeCh:   make(chan invoker.ActionOutcome, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Append queues out without blocking. Drops are logged.
func (j *Journal) Append(out invoker.ActionOutcome) {
	if err := j.Write(out); err != nil {
		slog.Warn("outcome journal dropped record", "batch_id", out.BatchID, "tab_id", out.TabID, "error", err)
	}
}

func (j *Journal) Write(out invoker.ActionOutcome) error {
	select {
	case <-j.done:
		return ErrClosed
	default:
	}
	select {
	case j.writeCh <- out:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close drains queued records for up to five seconds and closes the file.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() { close(j.done) })
	j.wg.Wait()

	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case out := <-j.writeCh:
			j.writeRecord(out)
		case <-timeout:
			slog.Warn("outcome journal close timeout, some records may be lost")
			break drain
		default:
			break drain
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case out := <-j.writeCh:
			j.writeRecord(out)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(out invoker.ActionOutcome) {
	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("outcome journal marshal failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().UTC().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("outcome journal rotate failed", "error", err, "date", date)
			return
		}
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("outcome journal write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		_ = j.logger.Close()
		j.logger = nil
	}

	dir := filepath.Join(j.baseDir, date, outcomesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, fmt.Sprintf("%d.jsonl", j.startedAt))
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	j.currentDate = date
	slog.Info("opened outcome journal", "file", filename)
	return nil
}
