package worker

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/record"
)

// DefaultReplayInterval is the pause after each replayed record.
const DefaultReplayInterval = 100 * time.Millisecond

// replayIDPrefix marks source ids derived from a file name.
const replayIDPrefix = "csv-"

// ReplayConfig describes one replay source.
type ReplayConfig struct {
	// Slot is the registry slot the worker runs in.
	Slot Slot
	// Path of the CSV file.
	Path string
	// SourceID overrides the id derived from the file name.
	SourceID string
	// Interval is the pause after each emitted record; zero means DefaultReplayInterval.
	Interval time.Duration
	// Layout of the rows; zero means record.LayoutCSV.
	Layout record.Layout
}

// Replay re-emits a recorded file at a fixed pace.
type Replay struct {
	cfg      ReplayConfig
	sourceID string
	sink     Sink
}

// ReplaySourceID derives "csv-<n>" from a capture file name such as
// "20261018T073005Z-4.csv": n is the text between the last dash and the
// extension and must be all digits.
func ReplaySourceID(path string) (string, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return "", fmt.Errorf("%w: %q has no '-<number>' suffix", telemetry.ErrUnidentifiableSource, filepath.Base(path))
	}

	suffix := name[i+1:]
	if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
		return "", fmt.Errorf("%w: suffix %q of %q is not numeric",
			telemetry.ErrUnidentifiableSource, suffix, filepath.Base(path))
	}

	return replayIDPrefix + suffix, nil
}

// NewReplay resolves the source id and checks that the file exists.
// Both failures are returned before any goroutine is spawned.
func NewReplay(cfg ReplayConfig, sink Sink) (*Replay, error) {
	sourceID := strings.TrimSpace(cfg.SourceID)
	if sourceID == "" {
		var err error
		if sourceID, err = ReplaySourceID(cfg.Path); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", telemetry.ErrSourceNotFound, cfg.Path)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", cfg.Path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", telemetry.ErrSourceNotFound, cfg.Path)
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReplayInterval
	}

	if cfg.Layout == 0 {
		cfg.Layout = record.LayoutCSV
	}

	return &Replay{
		cfg:      cfg,
		sourceID: sourceID,
		sink:     sink,
	}, nil
}

// SourceID returns the explicit or derived source id.
func (r *Replay) SourceID() string {
	return r.sourceID
}

// Run emits every decodable row, pausing after each, and reports the end of
// the file to the sink. A stop interrupts the pause.
func (r *Replay) Run(ctx context.Context) error {
	f, err := os.Open(filepath.Clean(r.cfg.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", telemetry.ErrSourceNotFound, r.cfg.Path)
		}

		return fmt.Errorf("open %s: %w", r.cfg.Path, err)
	}

	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	emitted := 0

	for ctx.Err() == nil {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			logger.InfoKV(ctx, "Replay finished", "path", r.cfg.Path, "records", emitted)
			r.sink.OnReplayEnded(r.cfg.Slot, r.sourceID)

			return nil
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			r.sink.OnRecordSkipped(r.sourceID, fmt.Errorf("%w: %w", telemetry.ErrMalformedRecord, err))
			continue
		}

		if err != nil {
			return fmt.Errorf("read %s: %w", r.cfg.Path, err)
		}

		m, err := record.Decode(fields, r.cfg.Layout)
		if err != nil {
			r.sink.OnRecordSkipped(r.sourceID, err)
			continue
		}

		r.sink.OnMeasurement(r.sourceID, m)
		emitted++

		if !sleep(ctx, r.cfg.Interval) {
			break
		}
	}

	return nil
}
