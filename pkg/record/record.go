// Package record writes measurement runs to disk: one CSV per site with a
// labelled header block followed by one row per trace, plus an optional
// Parquet copy of the same traces.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ocupoint/salogger/pkg/spectrum"
)

// HeaderRows is the number of label/value rows preceding the data rows.
const HeaderRows = 7

var ErrExists = errors.New("output file already exists")

// Header describes a run; it is written as the first HeaderRows rows.
type Header struct {
	RunID    string
	Site     string
	Created  time.Time
	StartHz  float64
	StopHz   float64
	Points   int
	Samples  int
	Interval time.Duration
	// Start is the absolute time data rows are measured from.
	Start time.Time
}

// Options toggles extra outputs written next to the CSV.
type Options struct {
	Parquet bool
}

// Writer appends traces to a run's output files.
type Writer struct {
	path    string
	file    *os.File
	csv     *csv.Writer
	parquet *ParquetWriter
	points  int
	rows    int
}

// Path is the CSV output path for a site inside dir.
func Path(dir, site string) string {
	return filepath.Join(dir, filepath.Base(site)+".csv")
}

// ParquetPath is the Parquet sibling of a CSV path.
func ParquetPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".parquet"
}

// Exists reports whether any output for csvPath is already on disk.
func Exists(csvPath string, opts Options) bool {
	if _, err := os.Stat(csvPath); err == nil {
		return true
	}
	if opts.Parquet {
		if _, err := os.Stat(ParquetPath(csvPath)); err == nil {
			return true
		}
	}
	return false
}

// Create exclusively creates the CSV (and Parquet file when enabled) and
// writes the header block. It never truncates or appends to existing files.
func Create(path string, h Header, opts Options) (*Writer, error) {
	f, err := createExclusive(path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := &Writer{
		path:   path,
		file:   f,
		csv:    csv.NewWriter(f),
		points: h.Points,
	}

	if opts.Parquet {
		pf, err := createExclusive(ParquetPath(path))
		if err != nil {
			f.Close()
			os.Remove(path)
			if errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("%w: %s", ErrExists, ParquetPath(path))
			}
			return nil, fmt.Errorf("create %s: %w", ParquetPath(path), err)
		}
		w.parquet = NewParquetWriter(pf, h)
	}

	if err := w.writeHeader(h); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(h Header) error {
	rows := [][]string{
		{"Create Date", h.Created.Format("20060102_150405")},
		{"Start Freq", formatFloat(h.StartHz)},
		{"Stop Freq", formatFloat(h.StopHz)},
		{"# Points", strconv.Itoa(h.Points)},
		{"# Samples", strconv.Itoa(h.Samples)},
		{"Interval", formatFloat(h.Interval.Seconds())},
		{"Time", formatFloat(float64(h.Start.UnixNano()) / 1e9)},
	}
	if err := w.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteSample appends one trace measured elapsed after the run start.
func (w *Writer) WriteSample(elapsed time.Duration, values []float64) error {
	if len(values) != w.points {
		return fmt.Errorf("%w: got %d values, want %d", spectrum.ErrTraceLength, len(values), w.points)
	}

	row := make([]string, 0, len(values)+1)
	row = append(row, formatFloat(elapsed.Seconds()))
	for _, v := range values {
		row = append(row, formatFloat(v))
	}

	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write sample to %s: %w", w.path, err)
	}
	// Flush per row so a fail-stop run leaves every completed trace on disk.
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("write sample to %s: %w", w.path, err)
	}

	if w.parquet != nil {
		if err := w.parquet.Write(elapsed, values); err != nil {
			return err
		}
	}

	w.rows++
	return nil
}

// Rows is the number of data rows written.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes and closes all outputs.
func (w *Writer) Close() error {
	var errs []error

	if w.csv != nil {
		w.csv.Flush()
		errs = append(errs, w.csv.Error())
	}
	if w.file != nil {
		errs = append(errs, w.file.Close())
		w.file = nil
	}
	if w.parquet != nil {
		errs = append(errs, w.parquet.Close())
		w.parquet = nil
	}
	return errors.Join(errs...)
}

// ReadHeader parses the header block of a CSV written by Writer.
func ReadHeader(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header := make(map[string]string, HeaderRows)
	for i := 0; i < HeaderRows; i++ {
		rec, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read header row %d: %w", i, err)
		}
		if len(rec) != 2 {
			return nil, fmt.Errorf("header row %d: want 2 fields, got %d", i, len(rec))
		}
		header[rec[0]] = rec[1]
	}
	return header, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
