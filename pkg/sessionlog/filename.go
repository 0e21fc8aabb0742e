package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Extension of session log files.
const Extension = ".txt"

// TimestampLayout is the time portion of a log filename.
const TimestampLayout = "2006-01-02_15-04-05"

// FileName returns "<serial>-<timestamp>.txt" with a zero-padded serial.
func FileName(serial int, t time.Time) string {
	return fmt.Sprintf("%03d-%s%s", serial, t.Format(TimestampLayout), Extension)
}

// ParseSerial extracts the leading numeric prefix of a log filename.
func ParseSerial(name string) (int, bool) {
	if !strings.HasSuffix(name, Extension) {
		return 0, false
	}
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseTimestamp extracts the start time encoded in a log filename, in the
// local time zone.
func ParseTimestamp(name string) (time.Time, bool) {
	if _, ok := ParseSerial(name); !ok {
		return time.Time{}, false
	}
	dash := strings.IndexByte(name, '-')
	rest := strings.TrimSuffix(name[dash+1:], Extension)
	if len(rest) < len(TimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, rest[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NextSerial returns 1 + the highest serial among log files in dir.
// A missing directory yields 1.
func NextSerial(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to list session dir: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if n, ok := ParseSerial(entry.Name()); ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// ListFiles returns the log files in dir, ordered by filename.
func ListFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}
	var out []string
	for _, f := range files {
		if _, ok := ParseSerial(filepath.Base(f)); ok {
			out = append(out, f)
		}
	}
	return out, nil
}
