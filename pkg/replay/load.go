package replay

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/gazelog/pkg/schema"
)

// maxLineSize bounds a single log line.
const maxLineSize = 1 << 20

// Row is one raw data line.
type Row struct {
	// Line is the 1-based line number in the file.
	Line int

	// Elapsed is the row's time since session start. Rows whose time cell
	// is unreadable inherit the previous row's time so order is kept.
	Elapsed time.Duration

	// Cells includes the time cell at index 0.
	Cells []string

	// Err is set when the row cannot be applied at all.
	Err *RowParseError
}

// Log is a parsed session file bound to a schema.
type Log struct {
	Path    string
	Header  []string
	Binding *schema.Binding
	Rows    []Row

	// Reason is the trailing free-text line of an aborted session.
	Reason string
}

// Incomplete reports whether the session ended abnormally.
func (l *Log) Incomplete() bool {
	return l.Reason != ""
}

// Duration returns the time of the last row.
func (l *Log) Duration() time.Duration {
	if len(l.Rows) == 0 {
		return 0
	}
	return l.Rows[len(l.Rows)-1].Elapsed
}

// Load reads and binds a session file.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()

	log, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Path = path
	return log, nil
}

// Parse reads a session log from r. The header is bound with schema.Detect;
// an unknown layout is fatal. Row-level faults are kept on the rows and
// surface during replay.
func Parse(r io.Reader) (*Log, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []string
	var lineNos []int
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
		lineNos = append(lineNos, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyLog
	}

	header := strings.Split(lines[0], "\t")
	binding, err := schema.Detect(header)
	if err != nil {
		return nil, err
	}

	log := &Log{Header: header, Binding: binding}
	data := lines[1:]
	dataLineNos := lineNos[1:]

	if n := len(data); n > 0 && isReasonLine(data[n-1], binding.Width) {
		log.Reason = data[n-1]
		data = data[:n-1]
	}

	var prev time.Duration
	for i, line := range data {
		row := Row{Line: dataLineNos[i], Cells: strings.Split(line, "\t")}

		elapsed, err := parseSeconds(row.Cells[0])
		switch {
		case err != nil:
			row.Elapsed = prev
			row.Err = &RowParseError{Line: row.Line, Column: schema.TimeColumn, Value: row.Cells[0], Err: ErrInvalidValue}
		case len(row.Cells) != binding.Width:
			row.Elapsed = elapsed
			row.Err = &RowParseError{
				Line: row.Line,
				Err:  fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(row.Cells), binding.Width),
			}
		default:
			row.Elapsed = elapsed
		}
		prev = row.Elapsed
		log.Rows = append(log.Rows, row)
	}

	return log, nil
}

// isReasonLine reports whether the final line is free text rather than a row.
func isReasonLine(line string, width int) bool {
	cells := strings.Split(line, "\t")
	if len(cells) != width {
		return true
	}
	_, err := parseSeconds(cells[0])
	return err != nil
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, ErrInvalidValue
	}
	return time.Duration(math.Round(v * float64(time.Second))), nil
}
