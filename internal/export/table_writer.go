package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// tableWriter is a buffered, tab-separated writer for numeric rows.
type tableWriter struct {
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows int
}

func newTableWriter(path string) (*tableWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	cw := csv.NewWriter(bw)
	cw.Comma = '\t'
	return &tableWriter{file: f, buf: bw, csv: cw}, nil
}

// writeRow formats values with six decimals, as the plotting scripts expect.
func (w *tableWriter) writeRow(values ...float64) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = ftoa(v)
	}
	w.rows++
	return w.csv.Write(row)
}

// close flushes buffered rows and closes the file, reporting the first error.
func (w *tableWriter) close() error {
	w.csv.Flush()
	err := w.csv.Error()
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
