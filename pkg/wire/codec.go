// Package wire implements the message payloads carried inside psync frames:
// manual, length-prefixed binary encode/decode for each tag in the frame
// codec's tag table, since this protocol defines its own wire format rather
// than reaching for protobuf.
package wire

import (
	"encoding/binary"
	"fmt"
)

// encoder accumulates a message payload using the same big-endian,
// length-prefixed conventions as the frame codec itself.
type encoder struct {
	buf []byte
}

func (e *encoder) putUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) putUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putInt64(v int64) {
	e.putUint64(uint64(v))
}

// putBytes writes a uint32-length-prefixed byte slice.
func (e *encoder) putBytes(v []byte) {
	e.putUint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// putShortBytes writes a uint16-length-prefixed byte slice, for fields
// (paths, error messages) that can never legitimately approach 64 KiB.
func (e *encoder) putShortBytes(v []byte) {
	e.putUint16(uint16(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *encoder) putString(v string) {
	e.putShortBytes([]byte(v))
}

// fixed writes a byte slice with no length prefix, for fields with a size
// fixed by the message schema (e.g. a 16-byte strong hash).
func (e *encoder) fixed(v []byte) {
	e.buf = append(e.buf, v...)
}

// decoder consumes a message payload produced by encoder.
type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

var errShortPayload = fmt.Errorf("payload too short")

func (d *decoder) require(n int) error {
	if len(d.data)-d.pos < n {
		return errShortPayload
	}
	return nil
}

func (d *decoder) getUint8() (uint8, error) {
	if err := d.require(1); err != nil {
		return 0, err
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) getUint16() (uint16, error) {
	if err := d.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) getUint32() (uint32, error) {
	if err := d.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) getUint64() (uint64, error) {
	if err := d.require(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) getInt64() (int64, error) {
	v, err := d.getUint64()
	return int64(v), err
}

func (d *decoder) getBytes() ([]byte, error) {
	length, err := d.getUint32()
	if err != nil {
		return nil, err
	}
	if err := d.require(int(length)); err != nil {
		return nil, err
	}
	v := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)
	return v, nil
}

func (d *decoder) getShortBytes() ([]byte, error) {
	length, err := d.getUint16()
	if err != nil {
		return nil, err
	}
	if err := d.require(int(length)); err != nil {
		return nil, err
	}
	v := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)
	return v, nil
}

func (d *decoder) getString() (string, error) {
	v, err := d.getShortBytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (d *decoder) getFixed(n int) ([]byte, error) {
	if err := d.require(n); err != nil {
		return nil, err
	}
	v := d.data[d.pos : d.pos+n]
	d.pos += n
	return v, nil
}
