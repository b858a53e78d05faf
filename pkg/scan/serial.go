package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate for USB laser bridges.
const DefaultBaudRate = 115200

// maxLineBytes bounds one sweep line (a 1440-beam sweep at ~8 bytes/beam).
const maxLineBytes = 64 * 1024

// SerialConfig describes a serial-attached range sensor.
type SerialConfig struct {
	Port     string `yaml:"port" json:"port"`
	BaudRate int    `yaml:"baud_rate" json:"baud_rate"`
}

// OpenSerial opens the sensor's serial port in 8N1 mode.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	return port, nil
}

// ParseLine parses one sweep line: comma separated ranges in meters.
// "inf" and "nan" are accepted as the sensor's no-return and error markers.
func ParseLine(line string) (Sweep, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sweep{}, fmt.Errorf("%w: empty line", ErrMalformedSweep)
	}

	fields := strings.Split(line, ",")
	ranges := make([]float64, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		switch strings.ToLower(f) {
		case "inf", "+inf":
			ranges = append(ranges, math.Inf(1))
			continue
		case "nan":
			ranges = append(ranges, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Sweep{}, fmt.Errorf("%w: beam %d: %q", ErrMalformedSweep, i, f)
		}
		ranges = append(ranges, v)
	}
	return Sweep{Ranges: ranges}, nil
}

// Reader feeds a line-oriented sweep stream into a Filter.
type Reader struct {
	src    io.Reader
	filter *Filter
	logger *slog.Logger
}

// NewReader creates a reader over src (a serial port or any byte stream).
func NewReader(src io.Reader, filter *Filter, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{src: src, filter: filter, logger: logger}
}

// Run reads sweeps until the stream ends or ctx is cancelled. Malformed lines
// are logged and skipped. It returns nil on EOF or cancellation.
//
// Cancellation is only noticed between lines; close the underlying port to
// unblock a pending read.
func (r *Reader) Run(ctx context.Context) error {
	sc := bufio.NewScanner(r.src)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		sweep, err := ParseLine(sc.Text())
		if err != nil {
			r.logger.Debug("skipping sweep line", "error", err)
			r.filter.faults.Add(1)
			continue
		}
		r.filter.Update(sweep)
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	return nil
}
