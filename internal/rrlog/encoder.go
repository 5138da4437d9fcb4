package rrlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes the binary stream format: a header followed by
// length-prefixed record frames.
type Encoder struct {
	w      *bufio.Writer
	info   StreamInfo
	header bool
}

// NewEncoder returns a sink writing to w. The header is written before the
// first record, or on Close for an empty stream.
func NewEncoder(w io.Writer, info StreamInfo) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), info: info}
}

func (e *Encoder) writeHeader() error {
	if e.header {
		return nil
	}
	e.header = true
	if _, err := e.w.Write(encodeHeader(e.info)); err != nil {
		return fmt.Errorf("rrlog: write header: %w", err)
	}
	return nil
}

// WriteRecord implements Sink.
func (e *Encoder) WriteRecord(rec *Record) error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := e.w.Write(size[:]); err != nil {
		return fmt.Errorf("rrlog: write %s: %w", rec.EntityPath, err)
	}
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("rrlog: write %s: %w", rec.EntityPath, err)
	}
	return nil
}

// Close flushes buffered frames. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("rrlog: flush: %w", err)
	}
	return nil
}

// maxFrame bounds the size of one frame or header string.
const maxFrame = 1 << 30

// Decoder reads a binary stream written by Encoder.
type Decoder struct {
	r    *bufio.Reader
	info *StreamInfo
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Header reads the stream header if needed and returns it.
func (d *Decoder) Header() (StreamInfo, error) {
	if d.info != nil {
		return *d.info, nil
	}
	fixed := make([]byte, len(Magic)+2)
	if _, err := io.ReadFull(d.r, fixed); err != nil {
		return StreamInfo{}, fmt.Errorf("rrlog: read header: %w", err)
	}
	if string(fixed[:len(Magic)]) != Magic {
		return StreamInfo{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	buf := fixed
	for i := 0; i < 2; i++ {
		s, err := d.readChunk()
		if err != nil {
			return StreamInfo{}, fmt.Errorf("rrlog: read header: %w", err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	info, err := decodeHeader(buf)
	if err != nil {
		return StreamInfo{}, err
	}
	d.info = &info
	return info, nil
}

// Next returns the next record, or io.EOF at a clean end of stream.
func (d *Decoder) Next() (*Record, error) {
	if _, err := d.Header(); err != nil {
		return nil, err
	}
	var size [4]byte
	if _, err := io.ReadFull(d.r, size[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("rrlog: read frame: %w", err)
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > maxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrFormat, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, fmt.Errorf("rrlog: read frame: %w", err)
	}
	return decodeRecord(payload)
}

// readChunk reads a u32 length followed by that many bytes.
func (d *Decoder) readChunk() ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(d.r, size[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > maxFrame {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrFormat, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, err
	}
	return b, nil
}
