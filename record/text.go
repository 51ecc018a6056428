package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
)

// MalformedError describes a violation of a file layout.  It matches
// calerr.ErrMalformedRecord under errors.Is.
type MalformedError struct {
	// Line is the zero based line of the violation, -1 if it concerns the whole file
	Line int

	// Reason is a human readable description
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record: line %d: %s", e.Line, e.Reason)
}

// Unwrap exposes the sentinel
func (e *MalformedError) Unwrap() error {
	return calerr.ErrMalformedRecord
}

func malformed(line int, format string, args ...interface{}) error {
	return &MalformedError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// layout remembers the line ending conventions of a parsed file so that it
// can be written back byte for byte
type layout struct {
	eol      string
	trailing bool
}

var defaultLayout = layout{eol: "\n", trailing: true}

func splitLines(data []byte) ([]string, layout) {
	text := string(data)
	lo := layout{eol: "\n"}
	if strings.Contains(text, "\r\n") {
		lo.eol = "\r\n"
	}
	lines := strings.Split(text, lo.eol)
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lo.trailing = true
		lines = lines[:n-1]
	}
	return lines, lo
}

func (lo layout) join(lines []string) []byte {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString(lo.eol)
		}
		b.WriteString(l)
	}
	if lo.trailing && len(lines) > 0 {
		b.WriteString(lo.eol)
	}
	return []byte(b.String())
}

// block is a numeric data section.  Unchanged rows are written back with
// their original text; changed or appended rows are formatted with
// mathx.Repr and the block's delimiter.
type block struct {
	delim  string
	raw    []string
	parsed [][]float64
}

// splitRow splits a data line on ';', ',' or whitespace, whichever the line uses
func splitRow(line string) ([]string, string) {
	var parts []string
	delim := " "
	switch {
	case strings.Contains(line, ";"):
		delim = ";"
		parts = strings.Split(line, delim)
	case strings.Contains(line, ","):
		delim = ","
		parts = strings.Split(line, delim)
	case strings.Contains(line, "\t"):
		delim = "\t"
		parts = strings.Fields(line)
	default:
		parts = strings.Fields(line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, delim
}

// parseBlock parses lines into rows of exactly cols numbers.  first is the
// file line of lines[0], used for error messages.
func parseBlock(lines []string, first, cols int, defaultDelim string) (block, error) {
	b := block{delim: defaultDelim, raw: lines, parsed: make([][]float64, len(lines))}
	for i, l := range lines {
		parts, delim := splitRow(l)
		if i == 0 {
			b.delim = delim
		}
		if len(parts) != cols {
			return b, malformed(first+i, "want %d columns, got %d", cols, len(parts))
		}
		row := make([]float64, cols)
		for j, p := range parts {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return b, malformed(first+i, "column %d: %q is not a number", j, p)
			}
			row[j] = f
		}
		b.parsed[i] = row
	}
	return b, nil
}

func sameRow(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (b block) format(rows [][]float64) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		if i < len(b.parsed) && sameRow(row, b.parsed[i]) {
			out[i] = b.raw[i]
			continue
		}
		strs := make([]string, len(row))
		for j, v := range row {
			strs[j] = mathx.Repr(v)
		}
		out[i] = strings.Join(strs, b.delim)
	}
	return out
}

// headerLine splits "name: value" into its parts.  A line without a colon is
// all name.
func headerLine(l string) (name, value string) {
	idx := strings.Index(l, ":")
	if idx < 0 {
		return strings.TrimSpace(l), ""
	}
	return strings.TrimSpace(l[:idx]), strings.TrimSpace(l[idx+1:])
}

func isBlank(l string) bool {
	return strings.TrimSpace(l) == ""
}

// parseInt accepts "3" and the integral float spelling "3.0"
func parseInt(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}
