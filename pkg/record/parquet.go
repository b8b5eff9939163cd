package record

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/ocupoint/salogger/pkg/spectrum"
)

// TraceRow is one sampled trace in the Parquet output.
type TraceRow struct {
	ElapsedS float64   `parquet:"elapsed_s"`
	PeakDBm  float64   `parquet:"peak_dbm"`
	Levels   []float64 `parquet:"levels_dbm"`
}

// ParquetWriter streams TraceRows with the run header stored as key/value
// metadata.
type ParquetWriter struct {
	file   io.Closer
	writer *parquet.GenericWriter[TraceRow]
}

// NewParquetWriter creates a writer with our schema and metadata
func NewParquetWriter(f io.WriteCloser, h Header) *ParquetWriter {
	return &ParquetWriter{
		file: f,
		writer: parquet.NewGenericWriter[TraceRow](f,
			parquet.KeyValueMetadata("run_id", h.RunID),
			parquet.KeyValueMetadata("site", h.Site),
			parquet.KeyValueMetadata("start_freq_hz", formatFloat(h.StartHz)),
			parquet.KeyValueMetadata("stop_freq_hz", formatFloat(h.StopHz)),
			parquet.KeyValueMetadata("n_points", strconv.Itoa(h.Points)),
			parquet.KeyValueMetadata("n_samples", strconv.Itoa(h.Samples)),
			parquet.KeyValueMetadata("interval_s", formatFloat(h.Interval.Seconds())),
			parquet.KeyValueMetadata("start_time", h.Start.UTC().Format(time.RFC3339Nano)),
		),
	}
}

// Write appends one trace.
func (p *ParquetWriter) Write(elapsed time.Duration, values []float64) error {
	row := TraceRow{
		ElapsedS: elapsed.Seconds(),
		PeakDBm:  spectrum.Peak(values),
		Levels:   values,
	}
	if _, err := p.writer.Write([]TraceRow{row}); err != nil {
		return fmt.Errorf("write parquet row: %w", err)
	}
	return nil
}

// Close finalizes the footer and closes the file.
func (p *ParquetWriter) Close() error {
	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
