package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Log buffers the verbose output of one case. Lines are indented two
// spaces per level.
type Log struct {
	buf    bytes.Buffer
	indent int
	hint   string
}

// NewLog returns an empty log.
func NewLog() *Log { return &Log{} }

// Logf appends one line.
func (l *Log) Logf(format string, args ...any) {
	if l == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	for _, part := range strings.Split(line, "\n") {
		l.buf.WriteString(strings.Repeat("  ", l.indent))
		l.buf.WriteString(part)
		l.buf.WriteByte('\n')
	}
}

// Hintf records a hint shown with the next failure. It replaces any
// previous hint.
func (l *Log) Hintf(format string, args ...any) {
	if l == nil {
		return
	}
	l.hint = fmt.Sprintf(format, args...)
}

// Hint returns the current hint.
func (l *Log) Hint() string {
	if l == nil {
		return ""
	}
	return l.hint
}

// Push indents following lines one more level.
func (l *Log) Push() {
	if l != nil {
		l.indent++
	}
}

// Pop undoes one Push.
func (l *Log) Pop() {
	if l != nil && l.indent > 0 {
		l.indent--
	}
}

// String returns the buffered text.
func (l *Log) String() string {
	if l == nil {
		return ""
	}
	return l.buf.String()
}

// Flush writes the buffered text to w and empties the log.
func (l *Log) Flush(w io.Writer) error {
	if l == nil || l.buf.Len() == 0 {
		return nil
	}
	_, err := l.buf.WriteTo(w)
	return err
}
