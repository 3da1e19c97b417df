// Package pkgfile assembles a parsed Package from a compressed tar stream:
// the three metadata files (.BUILDINFO, .MTREE, .PKGINFO) plus the
// archive-level checksums and size that a sync database's desc member
// needs. It streams a bare tar and dispatches on member name, since
// pacman packages have no ar container.
package pkgfile

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/etnz/repod/archive"
	"github.com/etnz/repod/common"
	"github.com/etnz/repod/files"
	"github.com/etnz/repod/rerrors"
)

// Package is an assembled, parsed binary package archive.
type Package struct {
	Filename    string
	Compression common.CompressionEnum
	CSize       int64
	MD5         string
	SHA256      string
	BuildInfo   files.BuildInfo
	PkgInfo     files.PkgInfo
	MTree       []files.MTreeEntry
}

// FromReader parses a package archive, named filename for error messages
// and suffix-based compression detection fallback, from r. It computes the
// MD5 and SHA-256 of the exact bytes read from r (the compressed archive,
// matching pacman's own csize/md5sum/sha256sum semantics) and extracts the
// three metadata files.
func FromReader(filename string, r io.Reader) (*Package, error) {
	h1 := md5.New()
	h2 := sha256.New()
	var size int64
	counted := io.TeeReader(r, io.MultiWriter(h1, h2, sizeWriter{&size}))

	br, kind, err := archive.Sniff(counted)
	if err != nil {
		return nil, rerrors.NewFileError(filename, err)
	}
	if kind == common.CompressionNone {
		if guessed, ok := common.CompressionFromSuffix(suffixOf(filename)); ok {
			kind = guessed
		}
	}

	decompressed, err := archive.Reader(filename, kind, br)
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(decompressed)
	pkg := &Package{Filename: filename, Compression: kind}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, rerrors.NewFileError(filename, fmt.Errorf("reading tar stream: %w", err))
		}
		name := strings.TrimPrefix(hdr.Name, "./")

		switch {
		case name == ".BUILDINFO":
			pkg.BuildInfo, err = files.ParseBuildInfo(".BUILDINFO", tr)
		case name == ".PKGINFO":
			pkg.PkgInfo, err = files.ParsePkgInfo(".PKGINFO", tr)
		case name == ".MTREE":
			pkg.MTree, err = parseMTreeMember(tr)
		default:
			// symlinks, directories, and ordinary payload files are part of
			// the package contents but are not inspected by repod; they are
			// tolerated.
			_, err = io.Copy(io.Discard, tr)
		}
		if err != nil {
			return nil, err
		}
	}

	// Drain anything left unread (trailing padding) so the hash covers the
	// entire input stream, not just the bytes the tar reader consumed.
	if _, err := io.Copy(io.Discard, counted); err != nil {
		return nil, rerrors.NewFileError(filename, err)
	}

	if pkg.BuildInfo == nil {
		return nil, rerrors.NewFileParseError(filename, 0, "missing .BUILDINFO member")
	}
	if pkg.PkgInfo == nil {
		return nil, rerrors.NewFileParseError(filename, 0, "missing .PKGINFO member")
	}
	if pkg.MTree == nil {
		return nil, rerrors.NewFileParseError(filename, 0, "missing .MTREE member")
	}

	pkg.MD5 = hex.EncodeToString(h1.Sum(nil))
	pkg.SHA256 = hex.EncodeToString(h2.Sum(nil))
	pkg.CSize = size

	return pkg, nil
}

// parseMTreeMember decompresses the .MTREE member, which pacman always
// gzips independently of the outer package archive's own compression.
func parseMTreeMember(r io.Reader) ([]files.MTreeEntry, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, rerrors.NewFileError(".MTREE", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, rerrors.NewFileError(".MTREE", fmt.Errorf("opening gzip stream: %w", err))
	}
	defer gr.Close()
	return files.ParseMTree(".MTREE", gr)
}

func suffixOf(filename string) string {
	ext := filepath.Ext(filename)
	if ext == ".tar" {
		return ""
	}
	return ext
}

type sizeWriter struct{ n *int64 }

func (s sizeWriter) Write(p []byte) (int, error) {
	*s.n += int64(len(p))
	return len(p), nil
}
