package crypt4gh

import (
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

// Decrypt reads a complete Crypt4GH container from src and writes the
// verified plaintext to dst, returning the number of plaintext bytes
// written.
//
// Segment decryption is strictly sequential: each segment's position in the
// stream determines its expected context, so the cursor only ever advances.
// A segment whose authentication tag fails aborts the whole operation with a
// TamperedSegmentError carrying the segment index; nothing unauthenticated
// is ever emitted.
func Decrypt(dst io.Writer, src io.Reader, readerPrivate [KeySize]byte) (int64, error) {
	env, err := ParseEnvelope(src)
	if err != nil {
		return 0, err
	}
	opened, err := env.Open(readerPrivate)
	if err != nil {
		return 0, err
	}

	aead, err := chacha20poly1305.New(opened.DataKey)
	if err != nil {
		return 0, fmt.Errorf("init data cipher: %w", err)
	}

	out := newEditListWriter(dst, opened.EditList)

	buf := make([]byte, CipherSegmentSize)
	for segment := 0; ; segment++ {
		n, err := io.ReadFull(src, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return out.written, fmt.Errorf("read segment %d: %w", segment, err)
		}
		// the final segment may be shorter, but never below the
		// cryptographic minimum
		if n < nonceSize+tagSize {
			return out.written, fmt.Errorf("%w: truncated segment %d", common.ErrUnsupportedFormat, segment)
		}

		plain, aeadErr := aead.Open(nil, buf[:nonceSize], buf[nonceSize:n], nil)
		if aeadErr != nil {
			return out.written, &common.TamperedSegmentError{Segment: segment}
		}
		if _, werr := out.Write(plain); werr != nil {
			return out.written, fmt.Errorf("write plaintext: %w", werr)
		}
	}

	return out.written, nil
}

// editListWriter applies an optional Crypt4GH edit list to the decrypted
// stream: lengths alternate between bytes to skip and bytes to keep,
// starting with a skip. An odd number of lengths means everything after the
// final skip is kept; an even number means the remainder is discarded.
// A nil edit list keeps everything.
type editListWriter struct {
	dst       io.Writer
	remaining []uint64
	skipping  bool
	tailKeep  bool
	written   int64
}

func newEditListWriter(dst io.Writer, lengths []uint64) *editListWriter {
	return &editListWriter{
		dst:       dst,
		remaining: append([]uint64(nil), lengths...),
		skipping:  true,
		tailKeep:  len(lengths)%2 == 1 || len(lengths) == 0,
	}
}

func (w *editListWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if len(w.remaining) == 0 {
			if !w.tailKeep {
				return total, nil
			}
			n, err := w.dst.Write(p)
			w.written += int64(n)
			return total, err
		}

		cur := w.remaining[0]
		if cur == 0 {
			w.remaining = w.remaining[1:]
			w.skipping = !w.skipping
			continue
		}

		n := uint64(len(p))
		if cur < n {
			n = cur
		}
		if !w.skipping {
			wn, err := w.dst.Write(p[:n])
			w.written += int64(wn)
			if err != nil {
				return total, err
			}
		}
		w.remaining[0] -= n
		if w.remaining[0] == 0 {
			w.remaining = w.remaining[1:]
			w.skipping = !w.skipping
		}
		p = p[n:]
	}
	return total, nil
}
