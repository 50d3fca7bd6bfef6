// Package savecodec turns session snapshots into compact save blobs and
// back. Blobs are zstd-compressed JSON; decoded JSON is checked against an
// embedded schema before it is handed to a session.
package savecodec

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MJE43/guessrun/internal/game"
)

//go:embed snapshot.schema.json
var schemaJSON string

// ErrInvalidSave wraps every decode failure.
var ErrInvalidSave = errors.New("savecodec: invalid save")

var (
	schema  = jsonschema.MustCompileString("snapshot.schema.json", schemaJSON)
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	if encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(err)
	}
	if decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20)); err != nil {
		panic(err)
	}
}

// Encode serializes and compresses snap.
func Encode(snap *game.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("savecodec: nil snapshot")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("savecodec: marshal: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode decompresses and validates a blob produced by Encode.
func Decode(blob []byte) (*game.Snapshot, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	return DecodeJSON(raw)
}

// DecodeJSON validates uncompressed snapshot JSON, as sent by clients that
// import a save.
func DecodeJSON(raw []byte) (*game.Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}

	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	return &snap, nil
}
