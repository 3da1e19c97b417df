package files

import (
	"io"
	"regexp"
	"strconv"

	"github.com/etnz/repod/rerrors"
)

// BuildInfo is the tagged-union trait shared by BuildInfoV1 and
// BuildInfoV2: the minimal query surface every caller needs regardless of
// which schema variant was parsed.
type BuildInfo interface {
	SchemaVersion() int
	PkgBase() string
	PkgName() string
	PkgVer() string
}

// BuildInfoV1 is the format=1 .BUILDINFO schema.
type BuildInfoV1 struct {
	Format             string
	PkgName_           string
	PkgBase_           string
	PkgVer_            string
	PkgArch            string
	PkgBuildSHA256Sum  string
	Packager           string
	BuildDate          int64
	BuildDir           string
	BuildEnv           []string
	Options            []string
	Installed          []string
}

func (b *BuildInfoV1) SchemaVersion() int { return 1 }
func (b *BuildInfoV1) PkgBase() string    { return b.PkgBase_ }
func (b *BuildInfoV1) PkgName() string    { return b.PkgName_ }
func (b *BuildInfoV1) PkgVer() string     { return b.PkgVer_ }

// BuildInfoV2 additionally records the build tool used to produce the
// package.
type BuildInfoV2 struct {
	BuildInfoV1
	StartDir     string
	BuildTool    string
	BuildToolVer string
}

func (b *BuildInfoV2) SchemaVersion() int { return 2 }

var sha256HexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseBuildInfo reads a .BUILDINFO file, selecting the v1 or v2 schema by
// its "format" key ("1" or "2"), and validates the required fields for the
// schema selected. The v2-only keys startdir/buildtool/buildtoolver are
// rejected in a format 1 file.
func ParseBuildInfo(path string, r io.Reader) (BuildInfo, error) {
	lines, err := ScanKeyValue(path, r)
	if err != nil {
		return nil, err
	}

	v1 := &BuildInfoV1{}
	observed := map[string]bool{}
	hasV2Keys := false

	for _, kv := range lines {
		observed[kv.Key] = true
		switch kv.Key {
		case "format":
			if v1.Format != "" {
				return nil, rerrors.NewFileParseError(path, kv.Line, "duplicate key %q", kv.Key)
			}
			v1.Format = kv.Value
		case "pkgname":
			if v1.PkgName_ != "" {
				return nil, rerrors.NewFileParseError(path, kv.Line, "duplicate key %q", kv.Key)
			}
			v1.PkgName_ = kv.Value
		case "pkgbase":
			v1.PkgBase_ = kv.Value
		case "pkgver":
			v1.PkgVer_ = kv.Value
		case "pkgarch":
			v1.PkgArch = kv.Value
		case "pkgbuild_sha256sum":
			if !sha256HexRe.MatchString(kv.Value) {
				return nil, rerrors.NewValidationError("pkgbuild_sha256sum", "not 64 hex characters: %q", kv.Value)
			}
			v1.PkgBuildSHA256Sum = kv.Value
		case "packager":
			v1.Packager = kv.Value
		case "builddate":
			n, err := strconv.ParseInt(kv.Value, 10, 64)
			if err != nil || n < 0 {
				return nil, rerrors.NewValidationError("builddate", "not a non-negative integer: %q", kv.Value)
			}
			v1.BuildDate = n
		case "builddir":
			if len(kv.Value) == 0 || kv.Value[0] != '/' {
				return nil, rerrors.NewValidationError("builddir", "not an absolute path: %q", kv.Value)
			}
			v1.BuildDir = kv.Value
		case "buildenv":
			v1.BuildEnv = append(v1.BuildEnv, kv.Value)
		case "options":
			v1.Options = append(v1.Options, kv.Value)
		case "installed":
			v1.Installed = append(v1.Installed, kv.Value)
		case "startdir", "buildtool", "buildtoolver":
			hasV2Keys = true
		default:
			return nil, rerrors.NewFileParseError(path, kv.Line, "unknown key %q", kv.Key)
		}
	}

	if err := RequireKeys(path, observed, []string{
		"format", "pkgname", "pkgbase", "pkgver", "pkgarch", "pkgbuild_sha256sum",
		"packager", "builddate", "builddir", "buildenv", "options", "installed",
	}); err != nil {
		return nil, err
	}
	if v1.Format != "1" && v1.Format != "2" {
		return nil, rerrors.NewValidationError("format", "unsupported BuildInfo format %q", v1.Format)
	}

	if v1.Format == "1" {
		if hasV2Keys {
			return nil, rerrors.NewFileParseError(path, 0, "startdir/buildtool/buildtoolver are not allowed in format 1")
		}
		return v1, nil
	}

	v2 := &BuildInfoV2{BuildInfoV1: *v1}
	for _, kv := range lines {
		switch kv.Key {
		case "startdir":
			if len(kv.Value) == 0 || kv.Value[0] != '/' {
				return nil, rerrors.NewValidationError("startdir", "not an absolute path: %q", kv.Value)
			}
			v2.StartDir = kv.Value
		case "buildtool":
			v2.BuildTool = kv.Value
		case "buildtoolver":
			v2.BuildToolVer = kv.Value
		}
	}
	if err := RequireKeys(path, observed, []string{"startdir", "buildtool", "buildtoolver"}); err != nil {
		return nil, err
	}
	if v2.BuildTool == "devtools" {
		if !looksLikeFullVersion(v2.BuildToolVer) {
			return nil, rerrors.NewValidationError("buildtoolver", "does not parse as a full version: %q", v2.BuildToolVer)
		}
	}
	return v2, nil
}

var fullVersionRe = regexp.MustCompile(`^(?:\d+:)?[a-zA-Z0-9.+_~]+-[0-9]+$`)

func looksLikeFullVersion(s string) bool {
	return fullVersionRe.MatchString(s)
}
