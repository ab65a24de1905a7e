package checkpoint

import (
	"bytes"
	"io"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// Encode writes c as zstd-compressed JSON.
func Encode(w io.Writer, c *Checkpoint) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrCkptEncode)
	}
	if err := json.NewEncoder(zw).Encode(c); err != nil {
		zw.Close()
		return errors.WrapFromCode(err, errors.ErrCkptEncode)
	}
	if err := zw.Close(); err != nil {
		return errors.WrapFromCode(err, errors.ErrCkptEncode)
	}
	return nil
}

// Marshal encodes c into memory.
func Marshal(c *Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a checkpoint written by Encode.
func Decode(r io.Reader) (*Checkpoint, error) {
	raw, err := DecodeJSON(r)
	if err != nil {
		return nil, err
	}
	var c Checkpoint
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrCkptDecode)
	}
	return &c, nil
}

// DecodeJSON decompresses a checkpoint without parsing it, for inspection.
func DecodeJSON(r io.Reader) ([]byte, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrCkptDecode)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrCkptDecode)
	}
	return raw, nil
}

//Personal.AI order the ending
