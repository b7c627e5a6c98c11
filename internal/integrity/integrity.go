// Package integrity validates per-part checksums during download and the
// overall output shape afterwards. Pure functions: mismatches are reported,
// never corrected.
package integrity

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifyPart checks bytes against the checksum supplied by the backend.
// Recognized encodings:
//   - 32 hex chars: MD5 (S3 single-part ETag, quotes stripped)
//   - 64 hex chars: SHA-256 hex
//   - base64 with padding: MD5 (Content-MD5) or SHA-256
//     (x-amz-checksum-sha256 style), distinguished by decoded length
//
// An empty or unrecognized checksum verifies trivially; the total size check
// still applies to the assembled artifact.
func VerifyPart(data []byte, expected string) bool {
	expected = strings.Trim(strings.TrimPrefix(expected, "W/"), `"`)
	if expected == "" {
		return true
	}

	switch {
	case len(expected) == md5.Size*2 && isHex(expected):
		sum := md5.Sum(data)
		return strings.EqualFold(hex.EncodeToString(sum[:]), expected)
	case len(expected) == sha256.Size*2 && isHex(expected):
		sum := sha256.Sum256(data)
		return strings.EqualFold(hex.EncodeToString(sum[:]), expected)
	case strings.HasSuffix(expected, "="):
		raw, err := base64.StdEncoding.DecodeString(expected)
		if err != nil {
			return true
		}
		switch len(raw) {
		case md5.Size:
			sum := md5.Sum(data)
			return bytes.Equal(sum[:], raw)
		case sha256.Size:
			sum := sha256.Sum256(data)
			return bytes.Equal(sum[:], raw)
		}
		return true
	default:
		// Multipart ETags ("hash-N") and unknown formats are not
		// verifiable per part.
		return true
	}
}

// VerifyTotal checks that the assembled output has the expected size.
func VerifyTotal(outputSize, expectedSize int64) bool {
	return outputSize == expectedSize
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
