// Package sensorlog reads and writes the nine-column sensor log shared by the
// simulator, the capture tools and the estimator:
//
//	t  acc_x  acc_y  acc_z  omega_x  omega_y  omega_z  fix_x  fix_y
//
// Columns are separated by tabs, spaces or commas. Blank lines and lines
// starting with '#' are ignored.
package sensorlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// Columns is the number of values on every data row.
const Columns = 9

// Header names the columns, in order.
var Header = []string{"t", "acc_x", "acc_y", "acc_z", "omega_x", "omega_y", "omega_z", "fix_x", "fix_y"}

// ParseError reports a malformed row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sensor log line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options controls how fix columns are read.
type Options struct {
	// FixValid decides which fix values are real readings; everything else
	// is absent. nil means gps.AtLeast(gps.DefaultMinValid).
	FixValid gps.Predicate
}

func (o Options) predicate() gps.Predicate {
	if o.FixValid == nil {
		return gps.AtLeast(gps.DefaultMinValid)
	}
	return o.FixValid
}

// Parse reads every row from r.
func Parse(r io.Reader, opts Options) ([]imu.Sample, error) {
	valid := opts.predicate()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var samples []imu.Sample
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		s, err := parseFields(line, valid)
		if err != nil {
			return nil, &ParseError{Line: lineNum, Err: err}
		}
		samples = append(samples, s)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading sensor log: %w", err)
	}
	return samples, nil
}

// ParseLine parses a single data row.
func ParseLine(line string, opts Options) (imu.Sample, error) {
	return parseFields(strings.TrimSpace(line), opts.predicate())
}

// Load opens and parses the sensor log at path.
func Load(path string, opts Options) ([]imu.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sensor log: %w", err)
	}
	defer file.Close()

	samples, err := Parse(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func isSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t'
}

func parseFields(line string, valid gps.Predicate) (imu.Sample, error) {
	fields := strings.FieldsFunc(line, isSeparator)
	if len(fields) != Columns {
		return imu.Sample{}, fmt.Errorf("expected %d columns, got %d", Columns, len(fields))
	}

	var v [Columns]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return imu.Sample{}, fmt.Errorf("column %s: %w", Header[i], err)
		}
		v[i] = x
	}

	return imu.Sample{
		T:      v[0],
		AccX:   v[1],
		AccY:   v[2],
		AccZ:   v[3],
		OmegaX: v[4],
		OmegaY: v[5],
		OmegaZ: v[6],
		FixX:   gps.Read(v[7], valid),
		FixY:   gps.Read(v[8], valid),
	}, nil
}
