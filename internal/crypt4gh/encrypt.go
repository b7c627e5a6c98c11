package crypt4gh

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

// Encrypt writes a Crypt4GH container for the plaintext in src, addressed to
// readerPublic. A fresh random data key is generated per file.
func Encrypt(dst io.Writer, src io.Reader, writerPrivate [KeySize]byte, readerPublic [KeySize]byte) error {
	dataKey := common.GenerateRandByteArray(KeySize)

	header, err := makeEnvelope(dataKey, nil, writerPrivate, readerPublic)
	if err != nil {
		return err
	}
	if _, err := dst.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return encryptSegments(dst, src, dataKey)
}

func encryptSegments(dst io.Writer, src io.Reader, dataKey []byte) error {
	aead, err := chacha20poly1305.New(dataKey)
	if err != nil {
		return fmt.Errorf("init data cipher: %w", err)
	}

	buf := make([]byte, SegmentSize)
	out := make([]byte, 0, CipherSegmentSize)
	for {
		n, err := io.ReadFull(src, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read plaintext: %w", err)
		}

		nonce := common.GenerateRandByteArray(nonceSize)
		out = out[:0]
		out = append(out, nonce...)
		out = aead.Seal(out, nonce, buf[:n], nil)
		if _, err := dst.Write(out); err != nil {
			return fmt.Errorf("write segment: %w", err)
		}

		if n < SegmentSize {
			return nil
		}
	}
}

// makeEnvelope serializes a header with a data-key packet and, when lengths
// are given, an edit-list packet, each encrypted to readerPublic.
func makeEnvelope(dataKey []byte, editList []uint64, writerPrivate [KeySize]byte, readerPublic [KeySize]byte) ([]byte, error) {
	contents := [][]byte{marshalDataKeyPacket(dataKey)}
	if editList != nil {
		contents = append(contents, marshalEditListPacket(editList))
	}

	var out []byte
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint32(out, version)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(contents)))

	for _, content := range contents {
		packet, err := encryptPacket(content, writerPrivate, readerPublic)
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(packet)+4))
		out = append(out, packet...)
	}

	return out, nil
}

func marshalDataKeyPacket(dataKey []byte) []byte {
	out := make([]byte, 0, 4+4+KeySize)
	out = binary.LittleEndian.AppendUint32(out, packetTypeDataKey)
	out = binary.LittleEndian.AppendUint32(out, dataMethodChaCha20Poly1305)
	return append(out, dataKey...)
}

func marshalEditListPacket(lengths []uint64) []byte {
	out := make([]byte, 0, 8+len(lengths)*8)
	out = binary.LittleEndian.AppendUint32(out, packetTypeEditList)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(lengths)))
	for _, l := range lengths {
		out = binary.LittleEndian.AppendUint64(out, l)
	}
	return out
}

// encryptPacket seals content for readerPublic and prepends the method,
// writer public key and nonce per the header packet layout.
func encryptPacket(content []byte, writerPrivate [KeySize]byte, readerPublic [KeySize]byte) ([]byte, error) {
	writerPublic, err := DerivePublicKey(writerPrivate)
	if err != nil {
		return nil, err
	}
	key, err := writerSharedKey(writerPrivate, readerPublic)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init header cipher: %w", err)
	}

	nonce := common.GenerateRandByteArray(nonceSize)

	out := make([]byte, 0, packetFixedLen+len(content)+tagSize)
	out = binary.LittleEndian.AppendUint32(out, methodX25519ChaCha20Poly1305)
	out = append(out, writerPublic[:]...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, content, nil), nil
}
