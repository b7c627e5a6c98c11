// Package download drives the multipart transfer of one staged file: waiting
// out staging, planning byte ranges, fetching parts concurrently and
// assembling the output artifact.
package download

import "fmt"

// PartRange is one contiguous byte span of the remote object. End is
// exclusive, so the HTTP range header covers [Start, End-1].
type PartRange struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (p PartRange) Len() int64 { return p.End - p.Start }

// RangeHeader formats the span as an HTTP Range header value.
func (p PartRange) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", p.Start, p.End-1)
}

// PlanParts splits totalSize bytes into contiguous ranges of at most partSize
// each. Every byte is covered exactly once; only the final range may be
// shorter. A zero-byte object yields no parts.
func PlanParts(totalSize, partSize int64) ([]PartRange, error) {
	if totalSize < 0 {
		return nil, fmt.Errorf("total size must not be negative, got %d", totalSize)
	}
	if partSize <= 0 {
		return nil, fmt.Errorf("part size must be positive, got %d", partSize)
	}

	parts := make([]PartRange, 0, (totalSize+partSize-1)/partSize)
	for start := int64(0); start < totalSize; start += partSize {
		end := start + partSize
		if end > totalSize {
			end = totalSize
		}
		parts = append(parts, PartRange{Index: len(parts), Start: start, End: end})
	}
	return parts, nil
}
