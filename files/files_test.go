package files

import (
	"strings"
	"testing"

	"github.com/etnz/repod/common"
)

func TestParseBuildInfoV1(t *testing.T) {
	src := strings.Join([]string{
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
		"buildenv = color",
		"options = strip",
		"installed = bar-1:2.0-1-x86_64",
	}, "\n")

	bi, err := ParseBuildInfo(".BUILDINFO", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseBuildInfo: %v", err)
	}
	if bi.SchemaVersion() != 1 {
		t.Fatalf("SchemaVersion = %d, want 1", bi.SchemaVersion())
	}
	v1, ok := bi.(*BuildInfoV1)
	if !ok {
		t.Fatalf("expected *BuildInfoV1, got %T", bi)
	}
	if len(v1.BuildEnv) != 2 {
		t.Fatalf("BuildEnv = %v, want 2 entries", v1.BuildEnv)
	}
}

func TestParseBuildInfoV2RequiresFullVersionForDevtools(t *testing.T) {
	src := strings.Join([]string{
		"format = 2",
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
		"startdir = /startdir",
		"buildtool = devtools",
		"buildtoolver = not-a-version",
	}, "\n")

	if _, err := ParseBuildInfo(".BUILDINFO", strings.NewReader(src)); err == nil {
		t.Fatal("expected validation error for malformed buildtoolver")
	}
}

func TestParsePkgInfoV2DebugTag(t *testing.T) {
	src := strings.Join([]string{
		"pkgname = foo-debug",
		"pkgbase = foo",
		"pkgver = 1.0.0-1",
		"pkgdesc = debug symbols",
		"url = https://example.com",
		"builddate = 1700000000",
		"packager = Jane Doe <jane@example.com>",
		"size = 1024",
		"arch = x86_64",
		"license = MIT",
		"pkgtype = debug",
	}, "\n")

	pi, err := ParsePkgInfo(".PKGINFO", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePkgInfo: %v", err)
	}
	v2, ok := pi.(*PkgInfoV2)
	if !ok {
		t.Fatalf("expected *PkgInfoV2, got %T", pi)
	}
	if v2.PkgType != common.PkgTypeDebug {
		t.Fatalf("PkgType = %q, want debug", v2.PkgType)
	}
}

func TestMTreePathRoundTrip(t *testing.T) {
	const decoded = "/Атласные.svgz"
	const encoded = `/\320\220\321\202\320\273\320\260\321\201\320\275\321\213\320\265.svgz`

	if got := DecodeMTreePath(encoded); got != decoded {
		t.Fatalf("DecodeMTreePath = %q, want %q", got, decoded)
	}
	if got := EncodeMTreePath(decoded); got != encoded {
		t.Fatalf("EncodeMTreePath = %q, want %q", got, encoded)
	}
}

func TestParseMTreeWithSetDefaults(t *testing.T) {
	src := strings.Join([]string{
		"/set type=file uid=0 gid=0 mode=644",
		"./usr/bin/foo time=1700000000.0 size=42 md5digest=" + strings.Repeat("a", 32) + " sha256digest=" + strings.Repeat("b", 64),
	}, "\n")

	entries, err := ParseMTree(".MTREE", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseMTree: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Type != MTreeFile || e.Mode != "644" || e.Size != 42 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestDescRoundTrip(t *testing.T) {
	sig := "somesig"
	d := &PackageDesc{
		Filename: "foo-1.0.0-1-x86_64.pkg.tar.zst",
		Name:     "foo",
		Base:     "foo",
		Version:  "1.0.0-1",
		CSize:    100,
		ISize:    200,
		MD5Sum:   strings.Repeat("a", 32),
		SHA256Sum: strings.Repeat("b", 64),
		PGPSig:   &sig,
		Arch:     "x86_64",
		BuildDate: 1700000000,
		Packager: "Jane Doe <jane@example.com>",
		License:  []string{"MIT"},
	}

	rendered := RenderDesc(d)
	parsed, err := ParseDesc("desc", strings.NewReader(string(rendered)))
	if err != nil {
		t.Fatalf("ParseDesc: %v", err)
	}
	if parsed.Name != d.Name || parsed.Version != d.Version || parsed.SchemaVersion != 1 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if parsed.PGPSig == nil || *parsed.PGPSig != sig {
		t.Fatalf("PGPSig not preserved: %+v", parsed.PGPSig)
	}
}

func TestDescV2WithoutPGPSig(t *testing.T) {
	d := &PackageDesc{
		Filename: "foo-1.0.0-1-x86_64.pkg.tar.zst", Name: "foo", Base: "foo", Version: "1.0.0-1",
		MD5Sum: strings.Repeat("a", 32), SHA256Sum: strings.Repeat("b", 64),
		Arch: "x86_64", BuildDate: 1700000000, Packager: "Jane Doe <jane@example.com>",
	}
	parsed, err := ParseDesc("desc", strings.NewReader(string(RenderDesc(d))))
	if err != nil {
		t.Fatalf("ParseDesc: %v", err)
	}
	if parsed.SchemaVersion != 2 {
		t.Fatalf("SchemaVersion = %d, want 2", parsed.SchemaVersion)
	}
}
