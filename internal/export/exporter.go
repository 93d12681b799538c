package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/apc-tools/apcstore/internal/config"
	"github.com/apc-tools/apcstore/internal/logging"
	"github.com/apc-tools/apcstore/internal/reading"
)

// RangeQuerier is the read contract the exporter pulls from.
type RangeQuerier interface {
	RangeQueryAll(ctx context.Context, deviceSN string, from, to time.Time) ([]*reading.Reading, error)
}

// Exporter snapshots a device's time range into a Parquet file.
type Exporter struct {
	store RangeQuerier
	dir   string
	opts  Options
	log   *slog.Logger
}

// NewExporter creates an exporter writing into the configured directory.
func NewExporter(store RangeQuerier, cfg config.ExportConfig) *Exporter {
	opts := DefaultOptions()
	opts.Compression = ParseCompressionType(cfg.Compression)

	return &Exporter{
		store: store,
		dir:   cfg.Dir,
		opts:  opts,
		log:   logging.Component("export"),
	}
}

// Export writes all readings of deviceSN within [from, to] to a Parquet
// file named after the device and window. It returns the file path and the
// number of rows written; an empty range still produces a valid file.
func (e *Exporter) Export(ctx context.Context, deviceSN string, from, to time.Time) (string, int64, error) {
	readings, err := e.store.RangeQueryAll(ctx, deviceSN, from, to)
	if err != nil {
		return "", 0, fmt.Errorf("query range: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.parquet",
		deviceSN,
		from.UTC().Format("2006-01-02T15-04-05"),
		to.UTC().Format("2006-01-02T15-04-05"),
	)
	path := filepath.Join(e.dir, filename)

	w, err := NewWriter(path, e.opts)
	if err != nil {
		return "", 0, err
	}

	if err := w.Write(readings); err != nil {
		w.Close()
		return "", 0, err
	}

	if err := w.Close(); err != nil {
		return "", 0, err
	}

	e.log.Info("export written", "device_sn", deviceSN, "path", path, "rows", w.RowCount())
	return path, w.RowCount(), nil
}
