package message

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ErrSkip marks an input line that is dropped instead of imported.
var ErrSkip = errors.New("skip line")

const fieldCount = 4

// ParseLine parses one export line of the form
//
//	{timestamp}\t{address}\t{s|r}\t{text}
//
// Lines that do not have exactly four fields, carry a non-numeric timestamp,
// or name no address for a known direction return an error wrapping ErrSkip.
func ParseLine(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\r")
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return Message{}, fmt.Errorf("%w: %d fields", ErrSkip, len(fields))
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: timestamp %q", ErrSkip, fields[0])
	}

	address := strings.TrimSpace(fields[1])
	direction := ParseDirection(fields[2])
	if address == "" && direction != Unknown {
		return Message{}, fmt.Errorf("%w: empty address", ErrSkip)
	}

	return New(address, ts, fields[3], direction), nil
}

// Read parses every line of r. Skipped lines are logged at debug level and
// left out of the result.
func Read(r io.Reader, logger *slog.Logger) ([]Message, error) {
	var msgs []Message

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		msg, err := ParseLine(scanner.Text())
		if err != nil {
			logger.Debug("skipping input line", "line", lineNo, "reason", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return msgs, nil
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string, logger *slog.Logger) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	return Read(f, logger)
}
