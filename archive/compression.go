// Package archive wraps the five compression kinds a package archive or
// sync database tar stream may use (none, bzip2, gzip, lzma, zstandard)
// behind a single Reader/Writer pair, following a "compress on the way
// out, decompress on the way in" pattern.
package archive

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/rerrors"
	"github.com/klauspost/compress/zstd"
)

// nopWriteCloser adapts an io.Writer with no Close method (gzip.Writer and
// zstd.Encoder both already implement Close, but "none" does not).
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Reader wraps r for decompression according to kind. bzip2 is read-only
// (the standard library provides no bzip2 encoder); lzma is unimplemented
// in both directions, as no lzma/xz library is available to this module.
// Both return a FileError rather than silently passing compressed bytes
// through.
func Reader(path string, kind common.CompressionEnum, r io.Reader) (io.Reader, error) {
	switch kind {
	case common.CompressionNone:
		return r, nil
	case common.CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, rerrors.NewFileError(path, fmt.Errorf("opening gzip stream: %w", err))
		}
		return gr, nil
	case common.CompressionBzip2:
		return bzip2.NewReader(r), nil
	case common.CompressionZstandard:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, rerrors.NewFileError(path, fmt.Errorf("opening zstandard stream: %w", err))
		}
		return zr.IOReadCloser(), nil
	case common.CompressionLzma:
		return nil, rerrors.NewFileError(path, fmt.Errorf("lzma decompression is not implemented"))
	default:
		return nil, rerrors.NewFileError(path, fmt.Errorf("unknown compression kind %q", kind))
	}
}

// Writer wraps w for compression according to kind. See Reader for the
// bzip2/lzma limitations, which apply symmetrically to writing.
func Writer(path string, kind common.CompressionEnum, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case common.CompressionNone:
		return nopWriteCloser{w}, nil
	case common.CompressionGzip:
		return gzip.NewWriter(w), nil
	case common.CompressionZstandard:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, rerrors.NewFileError(path, fmt.Errorf("opening zstandard writer: %w", err))
		}
		return zw, nil
	case common.CompressionBzip2:
		return nil, rerrors.NewFileError(path, fmt.Errorf("bzip2 compression is not implemented (read-only support)"))
	case common.CompressionLzma:
		return nil, rerrors.NewFileError(path, fmt.Errorf("lzma compression is not implemented"))
	default:
		return nil, rerrors.NewFileError(path, fmt.Errorf("unknown compression kind %q", kind))
	}
}

// magic bytes used to sniff a compression kind from stream content, since
// a sync database or package may be read from a pipe without a reliable
// filename suffix.
var magics = []struct {
	kind common.CompressionEnum
	sig  []byte
}{
	{common.CompressionGzip, []byte{0x1f, 0x8b}},
	{common.CompressionBzip2, []byte("BZh")},
	{common.CompressionZstandard, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{common.CompressionLzma, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// Sniff peeks at the head of r to determine its compression kind, and
// returns a *bufio.Reader positioned at the start of the stream (the peek
// is non-destructive) alongside the detected kind.
func Sniff(r io.Reader) (*bufio.Reader, common.CompressionEnum, error) {
	br := bufio.NewReaderSize(r, 4096)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return br, "", fmt.Errorf("peeking stream header: %w", err)
	}
	for _, m := range magics {
		if len(head) >= len(m.sig) && string(head[:len(m.sig)]) == string(m.sig) {
			return br, m.kind, nil
		}
	}
	return br, common.CompressionNone, nil
}
