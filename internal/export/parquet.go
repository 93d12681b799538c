// Package export writes Parquet snapshots of stored readings for
// downstream analytics and export jobs.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/google/uuid"

	"github.com/apc-tools/apcstore/internal/reading"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ReadingRow is a reading in Parquet format. Timestamps are Unix
// milliseconds, matching the store's representation.
type ReadingRow struct {
	ID                string `parquet:"id,zstd"`
	CreatedOnMs       int64  `parquet:"created_on_ms"`
	MeasurementTimeMs int64  `parquet:"measurement_time_ms"`
	Location          string `parquet:"location,zstd"`
	DeviceSN          string `parquet:"device_sn,zstd"`
	TVOC              int32  `parquet:"tvoc"`
	ECO2              int32  `parquet:"eco2"`
	AQI               int32  `parquet:"aqi"`
	Temperature       int32  `parquet:"temperature"`
	Humidity          int32  `parquet:"humidity"`
	PM1_0             int32  `parquet:"pm1_0"`
	PM2_5             int32  `parquet:"pm2_5"`
	PM10              int32  `parquet:"pm10"`
	PM1_0InAir        int32  `parquet:"pm1_0_in_air"`
	PM2_5InAir        int32  `parquet:"pm2_5_in_air"`
	PM10InAir         int32  `parquet:"pm10_in_air"`
	UM0_3Particles    int32  `parquet:"um0_3_particles"`
	UM0_5Particles    int32  `parquet:"um0_5_particles"`
	UM1Particles      int32  `parquet:"um1_particles"`
	UM2_5Particles    int32  `parquet:"um2_5_particles"`
	UM5Particles      int32  `parquet:"um5_particles"`
	UM10Particles     int32  `parquet:"um10_particles"`
}

// ReadingToRow converts a Reading to a ReadingRow.
func ReadingToRow(r *reading.Reading) ReadingRow {
	return ReadingRow{
		ID:                r.ID.String(),
		CreatedOnMs:       r.CreatedOn.UnixMilli(),
		MeasurementTimeMs: r.MeasurementTime.UnixMilli(),
		Location:          r.Location,
		DeviceSN:          r.DeviceSN,
		TVOC:              int32(r.TVOC),
		ECO2:              int32(r.ECO2),
		AQI:               int32(r.AQI),
		Temperature:       int32(r.Temperature),
		Humidity:          int32(r.Humidity),
		PM1_0:             int32(r.PM1_0),
		PM2_5:             int32(r.PM2_5),
		PM10:              int32(r.PM10),
		PM1_0InAir:        int32(r.PM1_0InAir),
		PM2_5InAir:        int32(r.PM2_5InAir),
		PM10InAir:         int32(r.PM10InAir),
		UM0_3Particles:    int32(r.UM0_3Particles),
		UM0_5Particles:    int32(r.UM0_5Particles),
		UM1Particles:      int32(r.UM1Particles),
		UM2_5Particles:    int32(r.UM2_5Particles),
		UM5Particles:      int32(r.UM5Particles),
		UM10Particles:     int32(r.UM10Particles),
	}
}

// msToTime converts Unix milliseconds to a UTC time, matching the
// store's representation.
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// RowToReading converts a ReadingRow back to a Reading.
func RowToReading(row *ReadingRow) (*reading.Reading, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}

	return &reading.Reading{
		ID:              id,
		CreatedOn:       msToTime(row.CreatedOnMs),
		MeasurementTime: msToTime(row.MeasurementTimeMs),
		Location:        row.Location,
		DeviceSN:        row.DeviceSN,
		TVOC:            int(row.TVOC),
		ECO2:            int(row.ECO2),
		AQI:             int(row.AQI),
		Temperature:     int(row.Temperature),
		Humidity:        int(row.Humidity),
		PM1_0:           int(row.PM1_0),
		PM2_5:           int(row.PM2_5),
		PM10:            int(row.PM10),
		PM1_0InAir:      int(row.PM1_0InAir),
		PM2_5InAir:      int(row.PM2_5InAir),
		PM10InAir:       int(row.PM10InAir),
		UM0_3Particles:  int(row.UM0_3Particles),
		UM0_5Particles:  int(row.UM0_5Particles),
		UM1Particles:    int(row.UM1Particles),
		UM2_5Particles:  int(row.UM2_5Particles),
		UM5Particles:    int(row.UM5Particles),
		UM10Particles:   int(row.UM10Particles),
	}, nil
}

// Writer writes readings to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ReadingRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a reading Parquet writer at path, creating parent
// directories as needed.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}

	writer := parquet.NewGenericWriter[ReadingRow](f, writerOpts...)

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends readings to the file.
func (w *Writer) Write(readings []*reading.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]ReadingRow, len(readings))
	for i, r := range readings {
		rows[i] = ReadingToRow(r)
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Reader reads readings from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[ReadingRow]
	path   string
}

// NewReader opens a reading Parquet file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	// ReadBufferSize is a file-level option, so apply it by opening the
	// parquet file explicitly before constructing the reader.
	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[ReadingRow](pf)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads every reading in the file.
func (r *Reader) ReadAll() ([]*reading.Reading, error) {
	numRows := r.reader.NumRows()
	if numRows == 0 {
		return nil, nil
	}
	rows := make([]ReadingRow, numRows)

	// Read may stop short at a row group boundary, so keep reading until
	// every row is in or the file ends.
	var filled int
	for filled < len(rows) {
		n, err := r.reader.Read(rows[filled:])
		filled += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	readings := make([]*reading.Reading, 0, filled)
	for i := 0; i < filled; i++ {
		rd, err := RowToReading(&rows[i])
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}

	return readings, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
