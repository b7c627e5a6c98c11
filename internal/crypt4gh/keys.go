// Package crypt4gh implements the Crypt4GH encrypted container format: an
// encrypted header carrying a data key and optional edit list, followed by
// fixed-size authenticated ciphertext segments.
//
// Header packets are encrypted with ChaCha20-Poly1305 under a shared key
// derived from an X25519 exchange between the writer key pair and the reader
// public key, hashed with BLAKE2b-512 (libsodium kx construction).
package crypt4gh

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the X25519 key length in bytes.
const KeySize = 32

// GenerateKeyPair returns a fresh X25519 key pair.
func GenerateKeyPair() (public, private [KeySize]byte, err error) {
	if _, err = rand.Read(private[:]); err != nil {
		return
	}
	public, err = DerivePublicKey(private)
	return
}

// DerivePublicKey computes the X25519 public key for private.
func DerivePublicKey(private [KeySize]byte) ([KeySize]byte, error) {
	var public [KeySize]byte
	p, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return public, fmt.Errorf("derive public key: %w", err)
	}
	copy(public[:], p)
	return public, nil
}

// sharedKey derives the 32-byte symmetric header key. Both sides hash the
// Diffie-Hellman secret together with the reader and writer public keys in
// that fixed order and take the lower half of the BLAKE2b-512 digest. In the
// libsodium kx construction the reader is the client and the writer the
// server, so this is the reader's rx key and the writer's tx key.
func sharedKey(dh []byte, writerPublic, readerPublic [KeySize]byte) []byte {
	buf := make([]byte, 0, len(dh)+2*KeySize)
	buf = append(buf, dh...)
	buf = append(buf, readerPublic[:]...)
	buf = append(buf, writerPublic[:]...)
	digest := blake2b.Sum512(buf)
	return digest[:32]
}

func writerSharedKey(writerPrivate [KeySize]byte, readerPublic [KeySize]byte) ([]byte, error) {
	writerPublic, err := DerivePublicKey(writerPrivate)
	if err != nil {
		return nil, err
	}
	dh, err := curve25519.X25519(writerPrivate[:], readerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("key exchange: %w", err)
	}
	return sharedKey(dh, writerPublic, readerPublic), nil
}

func readerSharedKey(readerPrivate [KeySize]byte, writerPublic [KeySize]byte) ([]byte, error) {
	readerPublic, err := DerivePublicKey(readerPrivate)
	if err != nil {
		return nil, err
	}
	dh, err := curve25519.X25519(readerPrivate[:], writerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("key exchange: %w", err)
	}
	return sharedKey(dh, writerPublic, readerPublic), nil
}
