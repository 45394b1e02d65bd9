package sensorlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// Encoder appends rows to a sensor log. Absent fix channels are written as
// the sentinel so the file stays purely numeric.
type Encoder struct {
	w        *bufio.Writer
	sentinel float64
	rows     int
}

// NewEncoder writes rows to w.
func NewEncoder(w io.Writer, sentinel float64) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), sentinel: sentinel}
}

// Encode writes one row.
func (e *Encoder) Encode(s imu.Sample) error {
	_, err := fmt.Fprintf(e.w, "%f\t%f\t%f\t%f\t%f\t%f\t%f\t%f\t%f\n",
		s.T, s.AccX, s.AccY, s.AccZ, s.OmegaX, s.OmegaY, s.OmegaZ,
		gps.Encode(s.FixX, e.sentinel), gps.Encode(s.FixY, e.sentinel))
	if err != nil {
		return err
	}
	e.rows++
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

// Rows returns the number of rows written.
func (e *Encoder) Rows() int { return e.rows }

// Write writes all samples to w.
func Write(w io.Writer, samples []imu.Sample, sentinel float64) error {
	enc := NewEncoder(w, sentinel)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// WriteFile creates path (and its directory) and writes all samples.
func WriteFile(path string, samples []imu.Sample, sentinel float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sensor log %s: %w", path, err)
	}
	if err := Write(f, samples, sentinel); err != nil {
		f.Close()
		return fmt.Errorf("write sensor log %s: %w", path, err)
	}
	return f.Close()
}
