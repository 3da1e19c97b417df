package pkgfile

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
)

func buildTestPackageTar(t *testing.T) []byte {
	t.Helper()

	buildinfo := strings.Join([]string{
		"format = 1",
		"pkgname = foo",
		"pkgbase = foo",
		"pkgver = 1.0.0-1",
		"pkgarch = x86_64",
		"pkgbuild_sha256sum = " + strings.Repeat("a", 64),
		"packager = Jane Doe <jane@example.com>",
		"builddate = 1700000000",
		"builddir = /build",
		"buildenv = check",
		"options = strip",
		"installed = bar-1:2.0-1-x86_64",
		"",
	}, "\n")

	pkginfo := strings.Join([]string{
		"pkgname = foo",
		"pkgbase = foo",
		"pkgver = 1.0.0-1",
		"pkgdesc = a test package",
		"url = https://example.com",
		"builddate = 1700000000",
		"packager = Jane Doe <jane@example.com>",
		"size = 1024",
		"arch = x86_64",
		"license = MIT",
		"",
	}, "\n")

	var mtreeGz bytes.Buffer
	gw := gzip.NewWriter(&mtreeGz)
	gw.Write([]byte("/set type=file uid=0 gid=0 mode=644\n./usr/bin/foo time=1700000000.0 size=4\n"))
	gw.Close()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, f := range []struct {
		name string
		body []byte
	}{
		{".BUILDINFO", []byte(buildinfo)},
		{".PKGINFO", []byte(pkginfo)},
		{".MTREE", mtreeGz.Bytes()},
		{"usr/bin/foo", []byte("bin!")},
	} {
		hdr := &tar.Header{Name: f.name, Size: int64(len(f.body)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write(f.body); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	tw.Close()
	return tarBuf.Bytes()
}

func TestFromReaderUncompressed(t *testing.T) {
	data := buildTestPackageTar(t)

	pkg, err := FromReader("foo-1.0.0-1-x86_64.pkg.tar", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if pkg.BuildInfo.PkgBase() != "foo" {
		t.Fatalf("PkgBase = %q, want foo", pkg.BuildInfo.PkgBase())
	}
	if pkg.PkgInfo.Name() != "foo" {
		t.Fatalf("Name = %q, want foo", pkg.PkgInfo.Name())
	}
	if len(pkg.MTree) != 1 {
		t.Fatalf("MTree entries = %d, want 1", len(pkg.MTree))
	}
	if pkg.CSize != int64(len(data)) {
		t.Fatalf("CSize = %d, want %d", pkg.CSize, len(data))
	}
	if pkg.MD5 == "" || pkg.SHA256 == "" {
		t.Fatal("expected non-empty digests")
	}
}
