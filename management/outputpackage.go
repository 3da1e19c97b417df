// Package management implements OutputPackageBase: the canonical per-
// pkgbase JSON record that bridges parsed Package values and sync database
// entries. One file exists per pkgbase in the management repository; sync
// databases are regenerated from these files on every publish.
package management

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/etnz/repod/files"
	"github.com/etnz/repod/pkgfile"
	"github.com/etnz/repod/rerrors"
)

// CurrentSchemaVersion is the schema_version written by this build.
// Readers accept this value or lower and refuse anything higher.
const CurrentSchemaVersion = 1

// OutputFiles is the optional files member of an OutputPackage, matching
// the shape of a sync database's files entry.
type OutputFiles struct {
	Files []string `json:"files"`
}

// OutputPackage is the per-package portion of an OutputPackageBase: the
// PackageDesc fields scoped to a single package (base/makedepends/
// packager/version live on the enclosing OutputPackageBase instead), plus
// an optional Files member. Field order here is alphabetical by JSON key,
// matching the "keys sorted" requirement on the serialized document.
type OutputPackage struct {
	Arch         string       `json:"arch"`
	Backup       []string     `json:"backup,omitempty"`
	Builddate    int64        `json:"builddate"`
	Checkdepends []string     `json:"checkdepends,omitempty"`
	Conflicts    []string     `json:"conflicts,omitempty"`
	Csize        int64        `json:"csize"`
	Depends      []string     `json:"depends,omitempty"`
	Desc         string       `json:"desc"`
	Filename     string       `json:"filename"`
	Files        *OutputFiles `json:"files,omitempty"`
	Groups       []string     `json:"groups,omitempty"`
	Isize        int64        `json:"isize"`
	License      []string     `json:"license,omitempty"`
	Md5sum       string       `json:"md5sum"`
	Name         string       `json:"name"`
	Optdepends   []string     `json:"optdepends,omitempty"`
	Pgpsig       *string      `json:"pgpsig,omitempty"`
	Provides     []string     `json:"provides,omitempty"`
	Replaces     []string     `json:"replaces,omitempty"`
	Sha256sum    string       `json:"sha256sum"`
	URL          string       `json:"url"`
}

// OutputPackageBase is the canonical per-pkgbase management record. Field
// order is alphabetical by JSON key; CanonicalJSON enforces this on the
// serialized document regardless, nested objects included.
type OutputPackageBase struct {
	Base          string                 `json:"base"`
	BuildInfo     *files.OutputBuildInfo `json:"buildinfo,omitempty"`
	Makedepends   []string               `json:"makedepends,omitempty"`
	Packager      string                 `json:"packager"`
	Packages      []OutputPackage        `json:"packages"`
	SchemaVersion int                    `json:"schema_version"`
	SourceURL     *string                `json:"source_url,omitempty"`
	Version       string                 `json:"version"`
}

// FromPackages constructs an OutputPackageBase from one or more parsed
// Package values sharing a single pkgbase. It fails if
// the list is empty, if the packages span more than one pkgbase, if any
// two packages share a name, if a package's version diverges from the
// pkgbase version, or if pkg/debug PkgInfo types are mixed within the
// group.
func FromPackages(pkgs []*pkgfile.Package) (*OutputPackageBase, error) {
	if len(pkgs) == 0 {
		return nil, rerrors.NewValidationError("packages", "at least one package is required")
	}

	base := pkgs[0].BuildInfo.PkgBase()
	version := pkgs[0].PkgInfo.Version()
	packager := firstPackagerOf(pkgs[0].PkgInfo)

	seenNames := map[string]bool{}
	var isDebugGroup *bool
	out := &OutputPackageBase{
		Base:          base,
		Packager:      packager,
		Version:       version,
		SchemaVersion: CurrentSchemaVersion,
	}

	for _, pkg := range pkgs {
		if pkg.BuildInfo.PkgBase() != base {
			return nil, rerrors.NewValidationError("pkgbase", "package %q has pkgbase %q, expected %q",
				pkg.PkgInfo.Name(), pkg.BuildInfo.PkgBase(), base)
		}
		if pkg.PkgInfo.Version() != version {
			return nil, rerrors.NewValidationError("version", "package %q has version %q, expected %q",
				pkg.PkgInfo.Name(), pkg.PkgInfo.Version(), version)
		}
		if seenNames[pkg.PkgInfo.Name()] {
			return nil, rerrors.NewValidationError("name", "duplicate package name %q", pkg.PkgInfo.Name())
		}
		seenNames[pkg.PkgInfo.Name()] = true

		if v2, ok := pkg.PkgInfo.(*files.PkgInfoV2); ok {
			isDebug := v2.PkgType == "debug"
			if isDebugGroup == nil {
				isDebugGroup = &isDebug
			} else if *isDebugGroup != isDebug {
				return nil, rerrors.NewValidationError("pkgtype", "mixed debug and non-debug packages in pkgbase %q", base)
			}
		}

		out.Packages = append(out.Packages, outputPackageFrom(pkg))
	}

	if bi := files.NewOutputBuildInfo(pkgs[0].BuildInfo); bi != nil {
		out.BuildInfo = bi
	}

	return out, nil
}

func firstPackagerOf(pi files.PkgInfo) string {
	switch v := pi.(type) {
	case *files.PkgInfoV2:
		return v.Packager
	case *files.PkgInfoV1:
		return v.Packager
	}
	return ""
}

func outputPackageFrom(pkg *pkgfile.Package) OutputPackage {
	var v1 *files.PkgInfoV1
	switch v := pkg.PkgInfo.(type) {
	case *files.PkgInfoV2:
		v1 = &v.PkgInfoV1
	case *files.PkgInfoV1:
		v1 = v
	}

	op := OutputPackage{
		Arch: v1.Arch_, Backup: v1.Backup, Builddate: v1.BuildDate,
		Checkdepends: v1.CheckDepend, Conflicts: v1.Conflicts, Csize: pkg.CSize,
		Depends: v1.Depend, Desc: v1.PkgDesc, Filename: pkg.Filename,
		Groups: v1.Groups, Isize: v1.Size, License: v1.License,
		Md5sum: pkg.MD5, Name: v1.PkgName_, Optdepends: v1.OptDepend,
		Provides: v1.Provides, Replaces: v1.Replaces, Sha256sum: pkg.SHA256,
		URL: v1.URL,
	}
	return op
}

// Get returns the package pkgname within this pkgbase, if present.
func (o *OutputPackageBase) Get(pkgname string) (*OutputPackage, bool) {
	for i := range o.Packages {
		if o.Packages[i].Name == pkgname {
			return &o.Packages[i], true
		}
	}
	return nil, false
}

// Names returns the package names contained in this pkgbase.
func (o *OutputPackageBase) Names() []string {
	names := make([]string, len(o.Packages))
	for i, p := range o.Packages {
		names[i] = p.Name
	}
	return names
}

// MarshalCanonical renders the OutputPackageBase as the exact byte
// sequence published to the management repository: two-space indentation,
// keys sorted alphabetically at every nesting level, and a trailing
// newline.
func (o *OutputPackageBase) MarshalCanonical() ([]byte, error) {
	return CanonicalJSON(o)
}

// CanonicalJSON re-encodes v with two-space indentation and every
// object's keys sorted alphabetically, at every nesting level, regardless
// of the source struct's field declaration order. It round-trips through
// a generic decode (json.Number preserves the original digit formatting,
// avoiding float64 rounding of large integers such as csize/isize) so
// sorting holds even for struct fields that are themselves structs or
// slices of structs.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalizing JSON: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonicalizing JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// FromFile reads and validates an OutputPackageBase JSON document from
// path. A broken JSON payload is a FileParseError; a shape mismatch (an
// unknown field, a wrongly typed value, an empty base, or a schema_version
// higher than this build understands) is a ValidationError.
func FromFile(path string) (*OutputPackageBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewFileNotFoundError(path)
		}
		return nil, rerrors.NewFileError(path, err)
	}
	return FromBytes(path, data)
}

// FromBytes parses an OutputPackageBase JSON document already read into
// memory.
func FromBytes(path string, data []byte) (*OutputPackageBase, error) {
	var out OutputPackageBase
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, rerrors.NewFileParseError(path, 0, "invalid JSON: %v", err)
		}
		return nil, rerrors.NewValidationError("", "document does not match the OutputPackageBase shape: %v", err)
	}
	if out.SchemaVersion > CurrentSchemaVersion {
		return nil, rerrors.NewValidationError("schema_version",
			"document schema_version %d is newer than this build supports (%d)", out.SchemaVersion, CurrentSchemaVersion)
	}
	if out.Base == "" {
		return nil, rerrors.NewValidationError("base", "must not be empty")
	}
	return &out, nil
}

// DescVersion selects which PackageDesc schema variant this
// OutputPackageBase's packages should be rendered as: v1 when a PGP
// signature is available to embed, v2 otherwise (the only axis on which
// the two desc schemas differ).
type DescVersion int

const (
	DescAuto DescVersion = iota
	DescV1
	DescV2
)

// GetPackagesAsModels yields, per package, the (desc, files) pair
// requested. descVersion selects DescV1 (pgpsig required and present) or
// DescV2 (pgpsig omitted); DescAuto picks v1 when a signature is present on
// the package, v2 otherwise. The files model is always schema v1 (the only
// files schema defined); there is no parameter to select it.
func (o *OutputPackageBase) GetPackagesAsModels(descVersion DescVersion) ([]PackageModel, error) {
	models := make([]PackageModel, 0, len(o.Packages))
	for _, p := range o.Packages {
		desc := &files.PackageDesc{
			Filename: p.Filename, Name: p.Name, Base: o.Base, Version: o.Version,
			Desc: p.Desc, Groups: p.Groups, CSize: p.Csize, ISize: p.Isize,
			MD5Sum: p.Md5sum, SHA256Sum: p.Sha256sum, URL: p.URL, License: p.License,
			Arch: p.Arch, BuildDate: p.Builddate, Packager: o.Packager,
			Replaces: p.Replaces, Conflicts: p.Conflicts, Provides: p.Provides,
			Depends: p.Depends, OptDepends: p.Optdepends, MakeDepends: o.Makedepends,
			CheckDepends: p.Checkdepends, Backup: p.Backup,
		}

		wantV1 := descVersion == DescV1 || (descVersion == DescAuto && p.Pgpsig != nil)
		if wantV1 {
			if p.Pgpsig == nil {
				return nil, rerrors.NewValidationError("pgpsig", "desc schema v1 requires a pgp signature for %q", p.Name)
			}
			desc.PGPSig = p.Pgpsig
			desc.SchemaVersion = 1
		} else {
			desc.SchemaVersion = 2
		}

		var fileList *files.Files
		if p.Files != nil {
			fileList = &files.Files{SchemaVersion: 1, Paths: p.Files.Files}
		}

		models = append(models, PackageModel{Desc: desc, Files: fileList})
	}
	return models, nil
}

// PackageModel is one (desc, files?) pair derived from an OutputPackage.
type PackageModel struct {
	Desc  *files.PackageDesc
	Files *files.Files
}
