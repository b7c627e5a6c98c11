package crypt4gh

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

const (
	magic   = "crypt4gh"
	version = 1

	// SegmentSize is the fixed plaintext segment length.
	SegmentSize = 65536

	nonceSize = chacha20poly1305.NonceSize
	tagSize   = chacha20poly1305.Overhead

	// CipherSegmentSize is the on-disk length of a full ciphertext
	// segment: nonce, plaintext and authentication tag.
	CipherSegmentSize = nonceSize + SegmentSize + tagSize

	// header packet body layout: method, writer public key, nonce, payload
	packetFixedLen = 4 + KeySize + nonceSize

	// header encryption method
	methodX25519ChaCha20Poly1305 = 0

	// decrypted packet types
	packetTypeDataKey  = 0
	packetTypeEditList = 1

	// data encryption method inside a data-key packet
	dataMethodChaCha20Poly1305 = 0

	// maxPacketLen guards against absurd allocations from corrupt input.
	maxPacketLen = 1 << 20

	maxEditListEntries = 1 << 16
)

// Envelope is a parsed, still-encrypted Crypt4GH header. It is immutable
// once parsed; a file has exactly one envelope at offset 0.
type Envelope struct {
	packets [][]byte
	size    int64
}

// Size returns the serialized header length in bytes.
func (e *Envelope) Size() int64 { return e.size }

// ParseEnvelope reads and validates the header region from r, leaving the
// reader positioned at the first ciphertext segment.
func ParseEnvelope(r io.Reader) (*Envelope, error) {
	var preamble [16]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", common.ErrUnsupportedFormat, err)
	}
	if string(preamble[:8]) != magic {
		return nil, fmt.Errorf("%w: bad magic bytes", common.ErrUnsupportedFormat)
	}
	if v := binary.LittleEndian.Uint32(preamble[8:12]); v != version {
		return nil, fmt.Errorf("%w: version %d", common.ErrUnsupportedFormat, v)
	}
	count := binary.LittleEndian.Uint32(preamble[12:16])
	if count == 0 {
		return nil, fmt.Errorf("%w: no header packets", common.ErrUnsupportedFormat)
	}

	env := &Envelope{size: 16}
	for i := uint32(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated packet %d: %v", common.ErrUnsupportedFormat, i, err)
		}
		// packet length counts the length field itself
		packetLen := binary.LittleEndian.Uint32(lenBuf[:])
		if packetLen < 4+packetFixedLen+tagSize || packetLen > maxPacketLen {
			return nil, fmt.Errorf("%w: packet %d has invalid length %d", common.ErrUnsupportedFormat, i, packetLen)
		}
		packet := make([]byte, packetLen-4)
		if _, err := io.ReadFull(r, packet); err != nil {
			return nil, fmt.Errorf("%w: truncated packet %d: %v", common.ErrUnsupportedFormat, i, err)
		}
		env.packets = append(env.packets, packet)
		env.size += int64(packetLen)
	}

	return env, nil
}

// OpenedHeader holds the secrets extracted from the first header packet that
// the reader's key could open.
type OpenedHeader struct {
	DataKey  []byte
	EditList []uint64
}

// Open attempts to decrypt each header packet with the reader's private key.
// Packets addressed to other recipients fail authentication and are skipped;
// the format permits multi-recipient headers. If no packet yields a data key
// the whole open fails with common.ErrNoMatchingKey.
func (e *Envelope) Open(readerPrivate [KeySize]byte) (*OpenedHeader, error) {
	opened := &OpenedHeader{}

	for _, packet := range e.packets {
		method := binary.LittleEndian.Uint32(packet[:4])
		if method != methodX25519ChaCha20Poly1305 {
			continue
		}

		var writerPublic [KeySize]byte
		copy(writerPublic[:], packet[4:4+KeySize])
		nonce := packet[4+KeySize : packetFixedLen]
		payload := packet[packetFixedLen:]

		key, err := readerSharedKey(readerPrivate, writerPublic)
		if err != nil {
			continue
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			continue
		}
		content, err := aead.Open(nil, nonce, payload, nil)
		if err != nil {
			// not addressed to this reader
			continue
		}

		if err := opened.absorb(content); err != nil {
			return nil, err
		}
	}

	if opened.DataKey == nil {
		return nil, common.ErrNoMatchingKey
	}
	return opened, nil
}

// absorb parses one decrypted packet content. The first data key and the
// first edit list win; later duplicates are ignored.
func (o *OpenedHeader) absorb(content []byte) error {
	if len(content) < 4 {
		return fmt.Errorf("%w: short packet content", common.ErrUnsupportedFormat)
	}
	packetType := binary.LittleEndian.Uint32(content[:4])

	switch packetType {
	case packetTypeDataKey:
		if len(content) != 4+4+KeySize {
			return fmt.Errorf("%w: bad data key packet length %d", common.ErrUnsupportedFormat, len(content))
		}
		if m := binary.LittleEndian.Uint32(content[4:8]); m != dataMethodChaCha20Poly1305 {
			return fmt.Errorf("%w: data encryption method %d", common.ErrUnsupportedFormat, m)
		}
		if o.DataKey == nil {
			o.DataKey = append([]byte(nil), content[8:8+KeySize]...)
		}

	case packetTypeEditList:
		if len(content) < 8 {
			return fmt.Errorf("%w: short edit list packet", common.ErrUnsupportedFormat)
		}
		n := binary.LittleEndian.Uint32(content[4:8])
		if n > maxEditListEntries || len(content) != 8+int(n)*8 {
			return fmt.Errorf("%w: bad edit list packet", common.ErrUnsupportedFormat)
		}
		if o.EditList == nil {
			lengths := make([]uint64, n)
			for i := range lengths {
				lengths[i] = binary.LittleEndian.Uint64(content[8+i*8:])
			}
			o.EditList = lengths
		}

	default:
		// unknown packet types are tolerated for forward compatibility
	}

	return nil
}
