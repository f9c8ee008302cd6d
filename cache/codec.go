/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Stored payloads carry a one-byte envelope marker so the encoding can evolve
// without guessing at the bytes behind it.
const (
	payloadMarkerRaw  byte = 0x00
	payloadMarkerGzip byte = 0x01
)

// encodePayload wraps value into the storage envelope, compressing it when it
// is at least compressMinSize bytes long. Zero compressMinSize disables
// compression entirely.
func encodePayload(value []byte, compressMinSize int) ([]byte, error) {
	if compressMinSize <= 0 || len(value) < compressMinSize {
		return append([]byte{payloadMarkerRaw}, value...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadMarkerGzip)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(value); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePayload unwraps the storage envelope produced by encodePayload.
func decodePayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	switch payload[0] {
	case payloadMarkerRaw:
		return payload[1:], nil
	case payloadMarkerGzip:
		zr, err := gzip.NewReader(bytes.NewReader(payload[1:]))
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		defer func() { _ = zr.Close() }()
		value, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown payload marker 0x%x", payload[0])
	}
}
