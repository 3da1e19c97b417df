package files

import (
	"bufio"
	"io"
	"strings"

	"github.com/etnz/repod/rerrors"
)

// SrcInfo is the parsed .SRCINFO of a source package: pkgbase-level
// defaults plus one set of per-pkgname overrides per built binary
// package. Only the fields the management record needs to carry forward
// (source URL, build options, checksums are handled elsewhere) are kept;
// unrecognised keys are preserved verbatim rather than rejected, since
// .SRCINFO carries many architecture-suffixed variants
// (source_x86_64, depends_aarch64, ...) that would otherwise all need
// enumerating.
type SrcInfo struct {
	PkgBase string
	PkgVer  string
	PkgRel  string
	Epoch   string
	URL     string
	Raw     map[string][]string
	Packages map[string]map[string][]string
}

// ParseSrcInfo reads a .SRCINFO stream: a pkgbase section followed by zero
// or more "pkgname = x" sections, each line "key = value", blank lines
// separating sections.
func ParseSrcInfo(path string, r io.Reader) (*SrcInfo, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	info := &SrcInfo{Raw: map[string][]string{}, Packages: map[string]map[string][]string{}}
	var currentPkg string
	inPkgBase := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, rerrors.NewFileParseError(path, 0, "line has no '=': %q", line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if key == "pkgbase" {
			info.PkgBase = value
			inPkgBase = true
			currentPkg = ""
			continue
		}
		if key == "pkgname" {
			inPkgBase = false
			currentPkg = value
			info.Packages[currentPkg] = map[string][]string{}
			continue
		}

		if inPkgBase {
			info.Raw[key] = append(info.Raw[key], value)
			switch key {
			case "pkgver":
				info.PkgVer = value
			case "pkgrel":
				info.PkgRel = value
			case "epoch":
				info.Epoch = value
			case "url":
				info.URL = value
			}
		} else {
			info.Packages[currentPkg][key] = append(info.Packages[currentPkg][key], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rerrors.NewFileError(path, err)
	}
	if info.PkgBase == "" {
		return nil, rerrors.NewFileParseError(path, 0, "missing required key \"pkgbase\"")
	}
	return info, nil
}

// FullVersion renders the source package's full alpm version string.
func (s *SrcInfo) FullVersion() string {
	var b strings.Builder
	if s.Epoch != "" && s.Epoch != "0" {
		b.WriteString(s.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(s.PkgVer)
	b.WriteByte('-')
	b.WriteString(s.PkgRel)
	return b.String()
}

// OutputBuildInfo is the slice of BuildInfo lifted into an
// OutputPackageBase management record: just enough of the original build
// to answer "how and when was this built", without duplicating the full
// BuildInfo/SrcInfo bodies in every management file. Field order is
// alphabetical by JSON key; CanonicalJSON enforces this regardless, but
// the declaration stays in sync so a plain json.Marshal also sorts.
type OutputBuildInfo struct {
	Builddate    int64    `json:"builddate"`
	Builddir     string   `json:"builddir"`
	Buildenv     []string `json:"buildenv,omitempty"`
	Buildtool    string   `json:"buildtool,omitempty"`
	Buildtoolver string   `json:"buildtoolver,omitempty"`
	Format       string   `json:"format"`
	Installed    []string `json:"installed,omitempty"`
	Options      []string `json:"options,omitempty"`
	Startdir     string   `json:"startdir,omitempty"`
}

// NewOutputBuildInfo lifts the fields of a parsed BuildInfo into the form
// stored in a management record.
func NewOutputBuildInfo(bi BuildInfo) *OutputBuildInfo {
	switch v := bi.(type) {
	case *BuildInfoV2:
		return &OutputBuildInfo{
			Format: v.Format, Builddate: v.BuildDate, Builddir: v.BuildDir,
			Buildenv: v.BuildEnv, Options: v.Options, Installed: v.Installed,
			Startdir: v.StartDir, Buildtool: v.BuildTool, Buildtoolver: v.BuildToolVer,
		}
	case *BuildInfoV1:
		return &OutputBuildInfo{
			Format: v.Format, Builddate: v.BuildDate, Builddir: v.BuildDir,
			Buildenv: v.BuildEnv, Options: v.Options, Installed: v.Installed,
		}
	}
	return nil
}
