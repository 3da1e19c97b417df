package management

import (
	"strings"
	"testing"

	"github.com/etnz/repod/files"
	"github.com/etnz/repod/pkgfile"
)

func testPackage(t *testing.T, name string) *pkgfile.Package {
	t.Helper()
	bi, err := files.ParseBuildInfo(".BUILDINFO", strings.NewReader(strings.Join([]string{
		"format = 1",
		"pkgname = " + name,
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
	}, "\n")))
	if err != nil {
		t.Fatalf("ParseBuildInfo: %v", err)
	}
	pi, err := files.ParsePkgInfo(".PKGINFO", strings.NewReader(strings.Join([]string{
		"pkgname = " + name,
		"pkgbase = foo",
		"pkgver = 1.0.0-1",
		"pkgdesc = a test package",
		"url = https://example.com",
		"builddate = 1700000000",
		"packager = Jane Doe <jane@example.com>",
		"size = 1024",
		"arch = x86_64",
		"license = MIT",
	}, "\n")))
	if err != nil {
		t.Fatalf("ParsePkgInfo: %v", err)
	}
	return &pkgfile.Package{
		Filename: name + "-1.0.0-1-x86_64.pkg.tar.zst",
		CSize:    100, MD5: strings.Repeat("a", 32), SHA256: strings.Repeat("b", 64),
		BuildInfo: bi, PkgInfo: pi,
	}
}

func TestFromPackagesSinglePackage(t *testing.T) {
	pkg := testPackage(t, "foo")
	base, err := FromPackages([]*pkgfile.Package{pkg})
	if err != nil {
		t.Fatalf("FromPackages: %v", err)
	}
	if base.Base != "foo" || base.Version != "1.0.0-1" {
		t.Fatalf("unexpected base: %+v", base)
	}
	if len(base.Packages) != 1 || base.Packages[0].Name != "foo" {
		t.Fatalf("unexpected packages: %+v", base.Packages)
	}
}

func TestFromPackagesRejectsEmpty(t *testing.T) {
	if _, err := FromPackages(nil); err == nil {
		t.Fatal("expected error for empty package list")
	}
}

func TestFromPackagesRejectsDuplicateName(t *testing.T) {
	pkg := testPackage(t, "foo")
	if _, err := FromPackages([]*pkgfile.Package{pkg, pkg}); err == nil {
		t.Fatal("expected error for duplicate package name")
	}
}

func TestMarshalCanonicalStableKeyOrder(t *testing.T) {
	pkg := testPackage(t, "foo")
	base, err := FromPackages([]*pkgfile.Package{pkg})
	if err != nil {
		t.Fatalf("FromPackages: %v", err)
	}
	data, err := base.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("expected trailing newline")
	}
	baseIdx := strings.Index(string(data), `"base"`)
	versionIdx := strings.Index(string(data), `"version"`)
	if baseIdx < 0 || versionIdx < 0 || baseIdx > versionIdx {
		t.Fatalf("expected \"base\" before \"version\" in sorted key order, got: %s", data)
	}
}

func TestFromBytesRejectsNewerSchema(t *testing.T) {
	doc := []byte(`{"base":"foo","packager":"","packages":[],"schema_version":99,"version":"1.0.0-1"}`)
	if _, err := FromBytes("test.json", doc); err == nil {
		t.Fatal("expected error for newer schema_version")
	}
}

func TestGetPackagesAsModelsDescAutoRequiresSigForV1(t *testing.T) {
	pkg := testPackage(t, "foo")
	base, err := FromPackages([]*pkgfile.Package{pkg})
	if err != nil {
		t.Fatalf("FromPackages: %v", err)
	}
	models, err := base.GetPackagesAsModels(DescAuto)
	if err != nil {
		t.Fatalf("GetPackagesAsModels: %v", err)
	}
	if models[0].Desc.SchemaVersion != 2 {
		t.Fatalf("SchemaVersion = %d, want 2 (no pgpsig present)", models[0].Desc.SchemaVersion)
	}

	if _, err := base.GetPackagesAsModels(DescV1); err == nil {
		t.Fatal("expected error requesting v1 desc without a pgp signature")
	}
}
