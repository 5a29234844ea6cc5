// Package codec is the binary encoding used by the journal and session
// archives: deterministic CBOR, optionally wrapped in a zstd stream.
//
// Types carrying json tags encode under those names, so protocol types
// need no separate cbor tags.
package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// encMode uses Core Deterministic Encoding: the same value always
// produces the same bytes, so stored payloads can be compared directly.
var encMode cbor.EncMode

// decMode ignores unknown fields so older readers accept newer records.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Timestamps keep nanoseconds and their zone.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// NewEncoder returns a CBOR sequence encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR sequence decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data in CBOR diagnostic notation, for debugging
// journal blobs and test failures.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// CompressedWriter is a zstd stream that also owns a CBOR encoder.
type CompressedWriter struct {
	zw  *zstd.Encoder
	enc *Encoder
}

// NewCompressedWriter starts a zstd-compressed CBOR sequence on w.
// Close must be called to flush the final frame; it does not close w.
func NewCompressedWriter(w io.Writer) (*CompressedWriter, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &CompressedWriter{zw: zw, enc: NewEncoder(zw)}, nil
}

// Encode appends one CBOR item to the stream.
func (c *CompressedWriter) Encode(v any) error {
	return c.enc.Encode(v)
}

// Close flushes the stream.
func (c *CompressedWriter) Close() error {
	return c.zw.Close()
}

// CompressedReader reads a sequence written by CompressedWriter.
type CompressedReader struct {
	zr  *zstd.Decoder
	dec *Decoder
}

// NewCompressedReader opens a zstd-compressed CBOR sequence.
func NewCompressedReader(r io.Reader) (*CompressedReader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &CompressedReader{zr: zr, dec: NewDecoder(zr)}, nil
}

// Decode reads the next item into v. Returns io.EOF at the end of the
// stream.
func (c *CompressedReader) Decode(v any) error {
	return c.dec.Decode(v)
}

// Close releases the decoder's goroutines.
func (c *CompressedReader) Close() {
	c.zr.Close()
}
