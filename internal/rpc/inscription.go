package rpc

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Compression tag bytes an inscription payload may be prefixed with,
// per SPEC_FULL §6.2.
const (
	compressionNone   = 0
	compressionBrotli = 1
)

// decodeInscriptionPayload turns a hex- or base64-encoded inscription
// payload into the raw RLP-encoded legacy transaction bytes it carries,
// stripping and interpreting the leading compression-algorithm tag byte
// when present.
func decodeInscriptionPayload(s string) ([]byte, error) {
	raw, err := decodeHexOrBase64(s)
	if err != nil {
		return nil, fmt.Errorf("decoding inscription payload: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty inscription payload")
	}

	switch raw[0] {
	case compressionNone:
		return raw[1:], nil
	case compressionBrotli:
		out, err := io.ReadAll(brotli.NewReader(strings.NewReader(string(raw[1:]))))
		if err != nil {
			return nil, fmt.Errorf("brotli-decompressing inscription payload: %w", err)
		}
		return out, nil
	default:
		// No recognized compression tag: treat the whole payload as
		// uncompressed raw transaction bytes, for callers that don't
		// prefix one at all.
		return raw, nil
	}
}

func decodeHexOrBase64(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if b, err := hex.DecodeString(trimmed); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
