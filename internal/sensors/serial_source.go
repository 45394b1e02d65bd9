package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
)

// LineSource reads sensor-log rows from a stream, one Sample per line.
// Rows that fail to parse are logged and skipped: a serial link drops and
// garbles bytes, and one bad row must not end the capture.
type LineSource struct {
	reader  *bufio.Reader
	opts    sensorlog.Options
	closer  io.Closer
	skipped int
}

func NewLineSource(r io.Reader, opts sensorlog.Options) *LineSource {
	return &LineSource{reader: bufio.NewReader(r), opts: opts}
}

// OpenSerialSource opens a serial port streaming sensor-log rows.
func OpenSerialSource(port string, baud int, opts sensorlog.Options) (*LineSource, error) {
	serialOpts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	rwc, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	log.Printf("serial source opened on %s at %d baud", port, baud)

	src := NewLineSource(rwc, opts)
	src.closer = rwc
	return src, nil
}

// Next returns the next well-formed row, or io.EOF when the stream ends.
func (s *LineSource) Next() (imu.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return imu.Sample{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		smp, perr := sensorlog.ParseLine(line, s.opts)
		if perr != nil {
			s.skipped++
			log.Printf("serial source: skipping row: %v", perr)
			continue
		}
		return smp, nil
	}
}

// Skipped returns the number of malformed rows dropped so far.
func (s *LineSource) Skipped() int { return s.skipped }

func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
