package syncdb

import (
	"bytes"
	"testing"

	"github.com/etnz/repod/management"
)

func testBase() *management.OutputPackageBase {
	return &management.OutputPackageBase{
		Base:          "foo",
		Version:       "1.0.0-1",
		Packager:      "Jane Doe <jane@example.com>",
		SchemaVersion: management.CurrentSchemaVersion,
		Packages: []management.OutputPackage{
			{
				Arch: "x86_64", Builddate: 1700000000, Csize: 100, Isize: 200,
				Desc: "a test package", Filename: "foo-1.0.0-1-x86_64.pkg.tar.zst",
				Md5sum: "11111111111111111111111111111111", Name: "foo",
				Sha256sum: "2222222222222222222222222222222222222222222222222222222222222222",
				URL:       "https://example.com",
				Files:     &management.OutputFiles{Files: []string{"usr/bin/foo"}},
			},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	base := testBase()

	var buf bytes.Buffer
	if err := Write(&buf, []*management.OutputPackageBase{base}, KindFiles, management.DescV2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bases, want 1", len(got))
	}
	if got[0].Base != "foo" || got[0].Version != "1.0.0-1" {
		t.Fatalf("unexpected base: %+v", got[0])
	}
	if len(got[0].Packages) != 1 || got[0].Packages[0].Name != "foo" {
		t.Fatalf("unexpected packages: %+v", got[0].Packages)
	}
	pkg := got[0].Packages[0]
	if pkg.Files == nil || len(pkg.Files.Files) != 1 || pkg.Files.Files[0] != "usr/bin/foo" {
		t.Fatalf("files member not round-tripped: %+v", pkg.Files)
	}
}

func TestWriteDescOnlyOmitsFiles(t *testing.T) {
	base := testBase()

	var buf bytes.Buffer
	if err := Write(&buf, []*management.OutputPackageBase{base}, KindDesc, management.DescV2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0].Packages[0].Files != nil {
		t.Fatalf("expected no files member in a desc-only database, got %+v", got[0].Packages[0].Files)
	}
}

func TestSplitEntryNameStripsVersionAndPkgrel(t *testing.T) {
	name, version, err := splitEntryName("my-cool-pkg-1.2.3-4")
	if err != nil {
		t.Fatalf("splitEntryName: %v", err)
	}
	if name != "my-cool-pkg" || version != "1.2.3-4" {
		t.Fatalf("got (%q, %q)", name, version)
	}
}
