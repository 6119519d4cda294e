// Package journal persists the per-strategy event streams as append-only
// JSON-lines files: one spot stream, one trigger stream, one trade stream.
// The files double as the recovery source after a restart.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
)

// Journal owns the three streams of one strategy. Appends are serialized; the
// engine is the only writer but status readers may stream concurrently.
type Journal struct {
	dir string
	id  string

	mu     sync.Mutex
	spots  *os.File
	trigs  *os.File
	trades *os.File
}

// New opens (creating if needed) the stream files for a strategy under dir.
func New(dir, strategyID string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrapf(err, "creating journal dir %s", dir)
	}

	j := &Journal{dir: dir, id: strategyID}

	var err error
	if j.spots, err = openAppend(j.path("spot")); err != nil {
		return nil, err
	}
	if j.trigs, err = openAppend(j.path("triggers")); err != nil {
		j.spots.Close()
		return nil, err
	}
	if j.trades, err = openAppend(j.path("trades")); err != nil {
		j.spots.Close()
		j.trigs.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) path(stream string) string {
	return filepath.Join(j.dir, stream+"_"+j.id+".jsonl")
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, apperrors.Wrapf(err, "opening journal stream %s", path)
	}
	return f, nil
}

// AppendSpot records one spot sample.
func (j *Journal) AppendSpot(sample models.SpotSample) error {
	return j.appendLine(j.spots, sample)
}

// AppendTrigger records one trigger lifecycle event.
func (j *Journal) AppendTrigger(event models.TriggerEvent) error {
	return j.appendLine(j.trigs, event)
}

// AppendTrade records one entry or exit.
func (j *Journal) AppendTrade(record models.TradeRecord) error {
	return j.appendLine(j.trades, record)
}

func (j *Journal) appendLine(f *os.File, v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, "encoding journal line")
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return apperrors.Wrap(err, "appending journal line")
	}
	return nil
}

// ReadSpots returns every spot sample in append order.
func (j *Journal) ReadSpots() ([]models.SpotSample, error) {
	return readStream[models.SpotSample](j.path("spot"))
}

// ReadTriggers returns every trigger event in append order.
func (j *Journal) ReadTriggers() ([]models.TriggerEvent, error) {
	return readStream[models.TriggerEvent](j.path("triggers"))
}

// ReadTrades returns every trade record in append order.
func (j *Journal) ReadTrades() ([]models.TradeRecord, error) {
	return readStream[models.TradeRecord](j.path("trades"))
}

func readStream[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrapf(err, "opening journal stream %s", path)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, apperrors.Wrapf(err, "decoding journal line in %s", path)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrapf(err, "reading journal stream %s", path)
	}
	return out, nil
}

// Clear truncates all three streams. Used when resetting a strategy for a
// fresh session; the open handles stay valid.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, f := range []*os.File{j.spots, j.trigs, j.trades} {
		if err := f.Truncate(0); err != nil {
			return apperrors.Wrap(err, "truncating journal stream")
		}
		if _, err := f.Seek(0, 0); err != nil {
			return apperrors.Wrap(err, "rewinding journal stream")
		}
	}
	return nil
}

// Close releases the stream file handles.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for _, f := range []*os.File{j.spots, j.trigs, j.trades} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
