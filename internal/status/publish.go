package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

type Publisher interface {
	Publish(s Snapshot) error
}

// LogPublisher writes a one line summary at info.
type LogPublisher struct{}

func (LogPublisher) Publish(s Snapshot) error {
	ev := log.Info().Str("transmitter", s.Transmitter).Bool("active", s.Active).
		Str("ps", s.PS).Str("rt", strings.ReplaceAll(s.RT, "\r", "<0d>"))
	for k, v := range s.Chip {
		ev = ev.Int(k, v)
	}
	ev.Msg("status")
	return nil
}

// FilePublisher keeps the latest snapshot as JSON at Path. Readers never see
// a partial file: it is written next to Path and renamed over it.
type FilePublisher struct {
	Path string
}

func (f FilePublisher) Publish(s Snapshot) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("status file: %w", err)
	}
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("status file: %w", err)
	}
	os.Chmod(tmp.Name(), 0o644)
	return os.Rename(tmp.Name(), f.Path)
}

// Read loads a snapshot written by FilePublisher.
func Read(path string) (Snapshot, error) {
	var s Snapshot
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(raw, &s)
	return s, err
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(s Snapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
