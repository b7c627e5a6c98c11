package crypt4gh

import (
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

// Key files use the Crypt4GH key format: a PEM-style banner around a base64
// payload. Public keys hold the raw 32 bytes. Private keys hold a small
// binary structure: the magic "c4gh-v1" followed by length-prefixed strings
// for the KDF name, the cipher name and the key material. Only unencrypted
// private keys (KDF and cipher "none") are supported here.

const (
	publicKeyBanner  = "CRYPT4GH PUBLIC KEY"
	privateKeyBanner = "CRYPT4GH PRIVATE KEY"
	keyMagic         = "c4gh-v1"
	kdfNone          = "none"
)

// SavePublicKey writes key to path in the Crypt4GH public key format.
func SavePublicKey(path string, key [KeySize]byte) error {
	return writeKeyFile(path, publicKeyBanner, key[:], 0o644)
}

// LoadPublicKey reads a Crypt4GH public key from path.
func LoadPublicKey(path string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := readKeyFile(path, publicKeyBanner)
	if err != nil {
		return key, err
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: public key in %s is %d bytes", common.ErrUnsupportedFormat, path, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// SavePrivateKey writes key to path as an unencrypted Crypt4GH private key.
func SavePrivateKey(path string, key [KeySize]byte) error {
	var blob []byte
	blob = append(blob, keyMagic...)
	blob = appendLenPrefixed(blob, []byte(kdfNone))
	blob = appendLenPrefixed(blob, []byte(kdfNone))
	blob = appendLenPrefixed(blob, key[:])
	return writeKeyFile(path, privateKeyBanner, blob, 0o600)
}

// LoadPrivateKey reads an unencrypted Crypt4GH private key from path.
// Password-protected keys are rejected.
func LoadPrivateKey(path string) ([KeySize]byte, error) {
	var key [KeySize]byte
	blob, err := readKeyFile(path, privateKeyBanner)
	if err != nil {
		return key, err
	}

	if len(blob) < len(keyMagic) || string(blob[:len(keyMagic)]) != keyMagic {
		return key, fmt.Errorf("%w: %s is not a Crypt4GH private key", common.ErrUnsupportedFormat, path)
	}
	blob = blob[len(keyMagic):]

	kdf, blob, err := readLenPrefixed(blob)
	if err != nil {
		return key, fmt.Errorf("%w: malformed private key in %s", common.ErrUnsupportedFormat, path)
	}
	if string(kdf) != kdfNone {
		return key, fmt.Errorf("%w: private key in %s is password protected", common.ErrUnsupportedFormat, path)
	}
	cipher, blob, err := readLenPrefixed(blob)
	if err != nil || string(cipher) != kdfNone {
		return key, fmt.Errorf("%w: malformed private key in %s", common.ErrUnsupportedFormat, path)
	}
	material, _, err := readLenPrefixed(blob)
	if err != nil || len(material) != KeySize {
		return key, fmt.Errorf("%w: malformed private key in %s", common.ErrUnsupportedFormat, path)
	}

	copy(key[:], material)
	return key, nil
}

func appendLenPrefixed(dst, v []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(v)))
	return append(dst, v...)
}

func readLenPrefixed(src []byte) (value, rest []byte, err error) {
	if len(src) < 2 {
		return nil, nil, fmt.Errorf("short length prefix")
	}
	n := int(binary.BigEndian.Uint16(src))
	if len(src) < 2+n {
		return nil, nil, fmt.Errorf("truncated value")
	}
	return src[2 : 2+n], src[2+n:], nil
}

func writeKeyFile(path, banner string, payload []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: banner, Bytes: payload})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	return nil
}

func readKeyFile(path, banner string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != banner {
		return nil, fmt.Errorf("%w: %s does not hold a %s block", common.ErrUnsupportedFormat, path, banner)
	}
	return block.Bytes, nil
}
