package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/parley/internal/model"
)

// ArchiveSink writes the game record as zstd-compressed JSONL, one file per
// run, suitable for replay tooling.
type ArchiveSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

type archiveRecord struct {
	Type      string      `json:"type"`
	Phase     string      `json:"phase,omitempty"`
	Power     model.Power `json:"power,omitempty"`
	Sender    model.Power `json:"sender,omitempty"`
	Recipient model.Power `json:"recipient,omitempty"`
	Content   string      `json:"content,omitempty"`
	Orders    []string    `json:"orders,omitempty"`
	Results   [][]string  `json:"results,omitempty"`
}

// NewArchiveSink creates <dir>/<runID>.jsonl.zst and returns a sink writing
// to it.
func NewArchiveSink(dir, runID string) (*ArchiveSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive dir: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &ArchiveSink{f: f, enc: enc, w: bufio.NewWriter(enc)}, nil
}

func (a *ArchiveSink) write(rec archiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return fmt.Errorf("archive closed")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := a.w.Write(b); err != nil {
		return err
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return err
	}
	return a.w.Flush()
}

func (a *ArchiveSink) AddPhase(_ context.Context, name string) error {
	return a.write(archiveRecord{Type: "phase", Phase: name})
}

func (a *ArchiveSink) AddMessage(_ context.Context, phase string, sender, recipient model.Power, content string) error {
	return a.write(archiveRecord{Type: "message", Phase: phase, Sender: sender, Recipient: recipient, Content: content})
}

func (a *ArchiveSink) AddOrders(_ context.Context, phase string, power model.Power, orders []string) error {
	return a.write(archiveRecord{Type: "orders", Phase: phase, Power: power, Orders: orders})
}

func (a *ArchiveSink) AddResults(_ context.Context, phase string, power model.Power, results [][]string) error {
	return a.write(archiveRecord{Type: "results", Phase: phase, Power: power, Results: results})
}

// Close flushes and closes the archive file.
func (a *ArchiveSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return nil
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	a.w = nil
	if err := a.enc.Close(); err != nil {
		a.f.Close()
		return err
	}
	return a.f.Close()
}
