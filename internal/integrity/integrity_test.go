package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyPart_MD5Hex(t *testing.T) {
	data := []byte("genomic payload")
	sum := md5.Sum(data)

	require.True(t, VerifyPart(data, hex.EncodeToString(sum[:])))
	require.True(t, VerifyPart(data, `"`+hex.EncodeToString(sum[:])+`"`), "quoted ETag form")
	require.False(t, VerifyPart([]byte("tampered payload!"), hex.EncodeToString(sum[:])))
}

func TestVerifyPart_ContentMD5(t *testing.T) {
	data := []byte("genomic payload")
	sum := md5.Sum(data)

	require.True(t, VerifyPart(data, base64.StdEncoding.EncodeToString(sum[:])))
	require.False(t, VerifyPart([]byte("other"), base64.StdEncoding.EncodeToString(sum[:])))
}

func TestVerifyPart_SHA256(t *testing.T) {
	data := []byte("genomic payload")
	sum := sha256.Sum256(data)

	require.True(t, VerifyPart(data, hex.EncodeToString(sum[:])))
	require.True(t, VerifyPart(data, base64.StdEncoding.EncodeToString(sum[:])))
	require.False(t, VerifyPart([]byte("other"), base64.StdEncoding.EncodeToString(sum[:])))
}

func TestVerifyPart_AbsentOrUnknownChecksumPasses(t *testing.T) {
	data := []byte("anything")
	require.True(t, VerifyPart(data, ""))
	require.True(t, VerifyPart(data, "d41d8cd98f00b204e9800998ecf8427e-7"), "multipart ETag is not verifiable")
}

func TestVerifyTotal(t *testing.T) {
	require.True(t, VerifyTotal(100, 100))
	require.False(t, VerifyTotal(99, 100))
	require.True(t, VerifyTotal(0, 0))
}
