package meshfmt

import (
	"bytes"
	"strconv"
)

// asciiReader reads one "Key: v, v, ..." line per record.
type asciiReader struct {
	data []byte
	pos  int

	line  []byte
	col   int
	first bool
}

func (r *asciiReader) nextLine() error {
	nl := bytes.IndexByte(r.data[r.pos:], '\n')
	if nl < 0 {
		return fail("line terminated")
	}
	r.line = bytes.TrimSuffix(r.data[r.pos:r.pos+nl], []byte{'\r'})
	r.pos += nl + 1
	r.col = 0
	r.first = true
	return nil
}

func (r *asciiReader) header() (uint32, error) {
	if err := r.nextLine(); err != nil {
		return 0, wrap(err, "nextLine()")
	}
	if !bytes.HasPrefix(r.line, asciiMagic) {
		return 0, fail("header == MFX-ASCII")
	}
	v, err := strconv.ParseUint(string(bytes.TrimSpace(r.line[len(asciiMagic):])), 10, 32)
	if err != nil {
		return 0, fail("version is a number")
	}
	return uint32(v), nil
}

func (r *asciiReader) open(key string) error {
	if err := r.nextLine(); err != nil {
		return wrap(err, "nextLine()")
	}
	if len(r.line) <= len(key) || string(r.line[:len(key)]) != key || r.line[len(key)] != ':' {
		return fail("line key matches")
	}
	r.col = len(key) + 1
	return nil
}

func (r *asciiReader) skipSpace() {
	for r.col < len(r.line) && (r.line[r.col] == ' ' || r.line[r.col] == '\t') {
		r.col++
	}
}

func (r *asciiReader) token() ([]byte, error) {
	r.skipSpace()
	if !r.first {
		if r.col >= len(r.line) || r.line[r.col] != ',' {
			return nil, fail("values separated by comma")
		}
		r.col++
		r.skipSpace()
	}
	r.first = false
	if r.col >= len(r.line) {
		return nil, fail("value present")
	}
	start := r.col
	if r.line[start] == '"' {
		q, err := strconv.QuotedPrefix(string(r.line[start:]))
		if err != nil {
			return nil, fail("string quote closed")
		}
		r.col += len(q)
		return r.line[start:r.col], nil
	}
	for r.col < len(r.line) && r.line[r.col] != ',' && r.line[r.col] != ' ' && r.line[r.col] != '\t' {
		r.col++
	}
	return r.line[start:r.col], nil
}

func (r *asciiReader) close() error {
	r.skipSpace()
	if r.col != len(r.line) {
		return fail("line fully consumed")
	}
	return nil
}

// canHold assumes every element takes at least one short line.
func (r *asciiReader) canHold(n, _ int) bool {
	return n <= (len(r.data)-r.pos)/3
}

func (r *asciiReader) u32() (uint32, error) {
	tok, err := r.token()
	if err != nil {
		return 0, wrap(err, "token()")
	}
	v, err := strconv.ParseUint(string(tok), 10, 32)
	if err != nil {
		return 0, fail("unsigned integer")
	}
	return uint32(v), nil
}

func (r *asciiReader) i32() (int32, error) {
	tok, err := r.token()
	if err != nil {
		return 0, wrap(err, "token()")
	}
	v, err := strconv.ParseInt(string(tok), 10, 32)
	if err != nil {
		return 0, fail("signed integer")
	}
	return int32(v), nil
}

func (r *asciiReader) f64() (float64, error) {
	tok, err := r.token()
	if err != nil {
		return 0, wrap(err, "token()")
	}
	v, err := strconv.ParseFloat(string(tok), 64)
	if err != nil {
		return 0, fail("float")
	}
	return v, nil
}

func (r *asciiReader) str() ([]byte, error) {
	tok, err := r.token()
	if err != nil {
		return nil, wrap(err, "token()")
	}
	if len(tok) == 0 || tok[0] != '"' {
		return nil, fail("string quoted")
	}
	s, err := strconv.Unquote(string(tok))
	if err != nil {
		return nil, fail("string escapes valid")
	}
	return []byte(s), nil
}

func (r *asciiReader) finish() error {
	if err := r.nextLine(); err != nil {
		return wrap(err, "nextLine()")
	}
	if string(r.line) != asciiEnd {
		return fail("last line == End")
	}
	if r.pos != len(r.data) {
		return fail("no trailing data")
	}
	return nil
}
