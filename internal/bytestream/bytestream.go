// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package bytestream cursors over the little-endian byte layout shared by
// the SPR and ACT file formats.
package bytestream

import (
	"encoding/binary"
	"math"
)

// Reader reads scalar fields from a byte slice. Reads past the end return
// zero values and set the short flag; callers check Short once after
// parsing instead of threading errors through every field read.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Short reports whether any read ran past the end of the data.
func (r *Reader) Short() bool {
	return r.short
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

func (r *Reader) Skip(n int) {
	if n < 0 || r.off+n > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return
	}
	r.off += n
}

func (r *Reader) ReadByte() byte {
	if r.off >= len(r.data) {
		r.short = true
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *Reader) ReadU16() uint16 {
	if r.off+2 > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *Reader) ReadU32() uint32 {
	if r.off+4 > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

func (r *Reader) ReadF32() float32 {
	return math.Float32frombits(r.ReadU32())
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || r.off+n > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadString reads a fixed-size field holding a null-terminated string.
func (r *Reader) ReadString(n int) string {
	b := r.ReadBytes(n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
