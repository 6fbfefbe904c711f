// Copyright 2023 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

const defaultBufferSize = 4 * 1024 * 1024

var errFinished = errors.New("datafile: writer already finished")

type nopWriter struct{}

func (nopWriter) Write([]byte) (int, error) {
	return 0, io.EOF
}

// FileWriter is usually an *os.File, but specified as an interface for easier testing.
type FileWriter interface {
	io.Writer
	io.WriterAt
}

// Writer lays out values back to back after a placeholder header, then
// patches the header in place once the value count is known.
type Writer struct {
	f        FileWriter
	w        *bufio.Writer
	off      uint64
	count    uint64
	finished atomic.Bool
}

// NewWriter writes a zeroed header placeholder to f and returns a Writer
// positioned at the start of the values section.
func NewWriter(f FileWriter) (*Writer, error) {
	w := &Writer{
		f: f,
		w: bufio.NewWriterSize(f, defaultBufferSize),
	}

	var placeholder [FileHeaderSize]byte
	if _, err := w.w.Write(placeholder[:]); err != nil {
		return nil, fmt.Errorf("bufio.Write: %w", err)
	}

	// try to expose errors when writing to the backing file early
	if err := w.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	return w, nil
}

// Write appends value, returning its offset relative to the start of the
// values section.
func (w *Writer) Write(value []byte) (off uint64, err error) {
	if w.finished.Load() {
		return 0, errFinished
	}
	off = w.off
	if _, err := w.w.Write(value); err != nil {
		return 0, fmt.Errorf("bufio.Write: %w", err)
	}
	w.off += uint64(len(value))
	w.count++
	return off, nil
}

// WriteFrom appends a value of exactly n bytes read from r.
func (w *Writer) WriteFrom(r io.Reader, n uint64) (off uint64, err error) {
	if w.finished.Load() {
		return 0, errFinished
	}
	off = w.off
	if _, err := io.CopyN(w.w, r, int64(n)); err != nil {
		return 0, fmt.Errorf("io.CopyN(%d): %w", n, err)
	}
	w.off += n
	w.count++
	return off, nil
}

// Len returns the number of values written so far.
func (w *Writer) Len() uint64 {
	return w.count
}

// Finish flushes buffered values and overwrites the placeholder header
// with the final key count and version.
func (w *Writer) Finish(version uint32) error {
	if alreadyFinished := w.finished.Swap(true); alreadyFinished {
		// nothing to do - already cleaned up
		return nil
	}

	defer func() {
		w.w.Reset(nopWriter{})
	}()

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("bufio.Flush: %w", err)
	}

	h := Header{
		Version:     version,
		KeyCount:    w.count,
		KeySize:     KeySize,
		ValuesStart: FileHeaderSize,
	}
	var headerBuf [FileHeaderSize]byte
	if err := h.MarshalTo(headerBuf[:]); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(headerBuf[:], 0); err != nil {
		return fmt.Errorf("f.WriteAt: %w", err)
	}

	return nil
}
