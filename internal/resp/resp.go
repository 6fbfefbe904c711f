// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package resp implements the subset of the Redis serialization protocol
// that daba's server speaks: simple strings, errors, integers, bulk
// strings and arrays, with null bulk strings and null arrays.
//
//	+OK\r\n                  simple string
//	-ERR unknown\r\n         error
//	:42\r\n                  integer
//	$5\r\nhello\r\n          bulk string ($-1\r\n is null)
//	*2\r\n$3\r\nGET\r\n...   array (*-1\r\n is null)
package resp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/zeebo/errs"
)

// Error is the class of all protocol errors.  I/O errors from the
// underlying reader are returned as is: a clean end of stream between
// values is io.EOF, one in the middle of a value io.ErrUnexpectedEOF.
var Error = errs.Class("resp")

// Kind identifies the type of a Value by its wire prefix.
type Kind byte

const (
	KindSimple  Kind = '+'
	KindError   Kind = '-'
	KindInteger Kind = ':'
	KindBulk    Kind = '$'
	KindArray   Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk string"
	case KindArray:
		return "array"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single protocol value.  Str holds the payload of simple
// strings, errors and bulk strings; Int holds integers; Array holds the
// elements of an array.  Null is only meaningful for bulk strings and
// arrays.
type Value struct {
	Kind  Kind
	Str   []byte
	Int   int64
	Array []Value
	Null  bool
}

// Simple returns a simple string.  s must not contain CR or LF.
func Simple(s string) Value { return Value{Kind: KindSimple, Str: []byte(s)} }

// Err returns an error value.  msg must not contain CR or LF.
func Err(msg string) Value { return Value{Kind: KindError, Str: []byte(msg)} }

// Int returns an integer.
func Int(n int64) Value { return Value{Kind: KindInteger, Int: n} }

// Bulk returns a bulk string holding b, which is not copied.
func Bulk(b []byte) Value { return Value{Kind: KindBulk, Str: b} }

// NullBulk returns the null bulk string, used for absent values.
func NullBulk() Value { return Value{Kind: KindBulk, Null: true} }

// Array returns an array of vs.
func Array(vs ...Value) Value { return Value{Kind: KindArray, Array: vs} }

// NullArray returns the null array.
func NullArray() Value { return Value{Kind: KindArray, Null: true} }

// Equal reports whether v and o encode to the same bytes.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Null != o.Null {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.Int == o.Int
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(v.Str, o.Str)
	}
}

const (
	// DefaultMaxBulk is the largest bulk string a Reader accepts by default.
	DefaultMaxBulk = 512 << 20
	// DefaultMaxArray is the largest array a Reader accepts by default.
	DefaultMaxArray = 1 << 20
	maxDepth        = 32
)

// Reader parses values from a stream.
type Reader struct {
	r        *bufio.Reader
	maxBulk  int64
	maxArray int64
}

// NewReader returns a Reader over r.  maxBulk bounds the length of any
// single bulk string; zero means DefaultMaxBulk.
func NewReader(r io.Reader, maxBulk int64) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	if maxBulk <= 0 {
		maxBulk = DefaultMaxBulk
	}
	return &Reader{r: br, maxBulk: maxBulk, maxArray: DefaultMaxArray}
}

// Parse reads one value from r with the default limits.
func Parse(r *bufio.Reader) (Value, error) {
	return NewReader(r, 0).ReadValue()
}

// ReadValue reads the next complete value.
func (r *Reader) ReadValue() (Value, error) {
	return r.readValue(0)
}

func (r *Reader) readValue(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, Error.New("arrays nested deeper than %d", maxDepth)
	}
	prefix, err := r.r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	kind := Kind(prefix)
	switch kind {
	case KindSimple, KindError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Str: append([]byte(nil), line...)}, nil

	case KindInteger:
		n, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil

	case KindBulk:
		n, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return NullBulk(), nil
		}
		if n < 0 {
			return Value{}, Error.New("invalid bulk length %d", n)
		}
		if n > r.maxBulk {
			return Value{}, Error.New("bulk length %d exceeds limit of %d", n, r.maxBulk)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return Value{}, unexpected(err)
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return Value{}, Error.New("bulk string not terminated by CRLF")
		}
		return Bulk(buf[:n:n]), nil

	case KindArray:
		n, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return NullArray(), nil
		}
		if n < 0 {
			return Value{}, Error.New("invalid array length %d", n)
		}
		if n > r.maxArray {
			return Value{}, Error.New("array length %d exceeds limit of %d", n, r.maxArray)
		}
		vs := make([]Value, 0, min(n, 64))
		for i := int64(0); i < n; i++ {
			v, err := r.readValue(depth + 1)
			if err != nil {
				return Value{}, unexpected(err)
			}
			vs = append(vs, v)
		}
		return Array(vs...), nil

	default:
		return Value{}, Error.New("unknown type byte %q", prefix)
	}
}

// readLine returns the rest of the current line without its CRLF.  The
// result aliases the bufio buffer.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, Error.New("line longer than %d bytes", r.r.Size())
	} else if err != nil {
		return nil, unexpected(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, Error.New("line not terminated by CRLF")
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readInt() (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, Error.New("invalid integer %q", line)
	}
	return n, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Write encodes v to w.  Callers are responsible for flushing w.
func Write(w *bufio.Writer, v Value) error {
	switch v.Kind {
	case KindSimple, KindError:
		if bytes.ContainsAny(v.Str, "\r\n") {
			return Error.New("%s contains CR or LF", v.Kind)
		}
		_ = w.WriteByte(byte(v.Kind))
		_, _ = w.Write(v.Str)
		_, err := w.WriteString("\r\n")
		return err

	case KindInteger:
		writeHeader(w, KindInteger, v.Int)
		return flushErr(w)

	case KindBulk:
		if v.Null {
			writeHeader(w, KindBulk, -1)
			return flushErr(w)
		}
		writeHeader(w, KindBulk, int64(len(v.Str)))
		_, _ = w.Write(v.Str)
		_, err := w.WriteString("\r\n")
		return err

	case KindArray:
		if v.Null {
			writeHeader(w, KindArray, -1)
			return flushErr(w)
		}
		writeHeader(w, KindArray, int64(len(v.Array)))
		for _, e := range v.Array {
			if err := Write(w, e); err != nil {
				return err
			}
		}
		return nil

	default:
		return Error.New("can't encode %s", v.Kind)
	}
}

func writeHeader(w *bufio.Writer, k Kind, n int64) {
	var buf [24]byte
	b := append(buf[:0], byte(k))
	b = strconv.AppendInt(b, n, 10)
	b = append(b, '\r', '\n')
	_, _ = w.Write(b)
}

// flushErr reports a sticky write error without flushing.  bufio.Writer
// remembers the first error and returns it from every later call.
func flushErr(w *bufio.Writer) error {
	_, err := w.Write(nil)
	return err
}
