package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/macro-sim/internal/economy"
	"github.com/talgya/macro-sim/internal/engine"
)

// ArchiveEntry is one line of a run archive.
type ArchiveEntry struct {
	Tick     uint64          `json:"tick"`
	Readings engine.Readings `json:"readings"`
	Events   []economy.Entry `json:"events,omitempty"`
}

// Archive writes every tick of a run as zstd-compressed JSON lines to
// <dir>/<runID>.jsonl.zst. It implements engine.Collector.
type Archive struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// ArchivePath is where the archive for runID lives under dir.
func ArchivePath(dir, runID string) string {
	return filepath.Join(dir, runID+".jsonl.zst")
}

// CreateArchive opens a fresh archive file for runID.
func CreateArchive(dir, runID string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := ArchivePath(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Archive{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the archive's file path.
func (a *Archive) Path() string { return a.path }

// Collect appends one tick.
func (a *Archive) Collect(tick uint64, r engine.Readings, events []economy.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.w == nil {
		return fmt.Errorf("archive %s is closed", a.path)
	}
	b, err := json.Marshal(ArchiveEntry{Tick: tick, Readings: r, Events: events})
	if err != nil {
		return err
	}
	if _, err := a.w.Write(b); err != nil {
		return err
	}
	return a.w.WriteByte('\n')
}

// Close flushes and closes the archive.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.w != nil {
		err = a.w.Flush()
		a.w = nil
	}
	if a.enc != nil {
		if cerr := a.enc.Close(); err == nil {
			err = cerr
		}
		a.enc = nil
	}
	if a.f != nil {
		if cerr := a.f.Close(); err == nil {
			err = cerr
		}
		a.f = nil
	}
	return err
}

// ReadArchive decodes every entry of an archive file, calling fn in order.
func ReadArchive(path string, fn func(ArchiveEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var e ArchiveEntry
		if err := jd.Decode(&e); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
