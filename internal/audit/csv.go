package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"stimctl/internal/model"
)

var csvHeader = []string{"Timestamp", "Source", "Event", "Details", "Stim_Amp", "Stim_Freq", "Stim_PW"}

// CSVStore writes the operator-facing log file, one row per record. The
// parameter columns hold the per-channel values in channel order, joined
// with '|' when more than one channel is configured.
type CSVStore struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// SessionFilename builds the default per-session log name, log_YYYYMMDD_HHMMSS.csv.
func SessionFilename(dir string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("log_%s.csv", at.Format("20060102_150405")))
}

func (s *CSVStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("csv path is required")
	}
	if s.f != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return err
	}
	s.f = f
	s.w = w
	return nil
}

func (s *CSVStore) Append(_ context.Context, rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return errors.New("store is not initialized")
	}
	amp, freq, pw := paramColumns(rec.Params)
	return s.w.Write([]string{
		rec.At.Format(time.RFC3339Nano),
		rec.Source,
		rec.Event,
		rec.Details,
		amp,
		freq,
		pw,
	})
}

func (s *CSVStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	s.w.Flush()
	err := s.w.Error()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	s.w = nil
	return err
}

func paramColumns(params map[model.Channel]model.StimParameters) (amp, freq, pw string) {
	if len(params) == 0 {
		return "", "", ""
	}
	channels := make([]model.Channel, 0, len(params))
	for ch := range params {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	amps := make([]string, 0, len(channels))
	freqs := make([]string, 0, len(channels))
	pws := make([]string, 0, len(channels))
	for _, ch := range channels {
		p := params[ch]
		amps = append(amps, strconv.FormatFloat(p.AmplitudeMilliamps, 'f', -1, 64))
		freqs = append(freqs, strconv.FormatFloat(p.FrequencyHz, 'f', -1, 64))
		pws = append(pws, strconv.Itoa(p.PulseWidthMicros))
	}
	return strings.Join(amps, "|"), strings.Join(freqs, "|"), strings.Join(pws, "|")
}
