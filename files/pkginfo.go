package files

import (
	"io"
	"strconv"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/rerrors"
)

// PkgInfo is the tagged-union trait shared by PkgInfoV1 and PkgInfoV2.
type PkgInfo interface {
	SchemaVersion() int
	Name() string
	Base() string
	Version() string
	Arch() string
}

// PkgInfoV1 is the base .PKGINFO schema, present in every package.
type PkgInfoV1 struct {
	PkgName_    string
	PkgBase_    string
	PkgVer_     string
	PkgDesc     string
	URL         string
	BuildDate   int64
	Packager    string
	Size        int64
	Arch_       string
	License     []string
	Depend      []string
	OptDepend   []string
	MakeDepend  []string
	CheckDepend []string
	Provides    []string
	Conflicts   []string
	Replaces    []string
	Backup      []string
	Groups      []string
}

func (p *PkgInfoV1) SchemaVersion() int { return 1 }
func (p *PkgInfoV1) Name() string       { return p.PkgName_ }
func (p *PkgInfoV1) Base() string       { return p.PkgBase_ }
func (p *PkgInfoV1) Version() string    { return p.PkgVer_ }
func (p *PkgInfoV1) Arch() string       { return p.Arch_ }

// PkgInfoV2 adds the pkgtype tag used to distinguish debug packages from
// ordinary, source, and split packages.
type PkgInfoV2 struct {
	PkgInfoV1
	PkgType common.PkgTypeEnum
}

func (p *PkgInfoV2) SchemaVersion() int { return 2 }

// ParsePkgInfo reads a .PKGINFO file. The presence of a "pkgtype" key
// selects the v2 schema; its absence yields v1.
func ParsePkgInfo(path string, r io.Reader) (PkgInfo, error) {
	lines, err := ScanKeyValue(path, r)
	if err != nil {
		return nil, err
	}

	v1 := &PkgInfoV1{}
	observed := map[string]bool{}
	var pkgType common.PkgTypeEnum
	hasPkgType := false

	appendList := func(dst []string, v string) []string { return append(dst, v) }

	for _, kv := range lines {
		observed[kv.Key] = true
		switch kv.Key {
		case "pkgname":
			v1.PkgName_ = kv.Value
		case "pkgbase":
			v1.PkgBase_ = kv.Value
		case "pkgver":
			v1.PkgVer_ = kv.Value
		case "pkgdesc":
			v1.PkgDesc = kv.Value
		case "url":
			v1.URL = kv.Value
		case "builddate":
			n, err := strconv.ParseInt(kv.Value, 10, 64)
			if err != nil || n < 0 {
				return nil, rerrors.NewValidationError("builddate", "not a non-negative integer: %q", kv.Value)
			}
			v1.BuildDate = n
		case "packager":
			v1.Packager = kv.Value
		case "size":
			n, err := strconv.ParseInt(kv.Value, 10, 64)
			if err != nil || n < 0 {
				return nil, rerrors.NewValidationError("size", "not a non-negative integer: %q", kv.Value)
			}
			v1.Size = n
		case "arch":
			v1.Arch_ = kv.Value
		case "license":
			v1.License = appendList(v1.License, kv.Value)
		case "depend":
			v1.Depend = appendList(v1.Depend, kv.Value)
		case "optdepend":
			v1.OptDepend = appendList(v1.OptDepend, kv.Value)
		case "makedepend":
			v1.MakeDepend = appendList(v1.MakeDepend, kv.Value)
		case "checkdepend":
			v1.CheckDepend = appendList(v1.CheckDepend, kv.Value)
		case "provides":
			v1.Provides = appendList(v1.Provides, kv.Value)
		case "conflicts":
			v1.Conflicts = appendList(v1.Conflicts, kv.Value)
		case "replaces":
			v1.Replaces = appendList(v1.Replaces, kv.Value)
		case "backup":
			v1.Backup = appendList(v1.Backup, kv.Value)
		case "group", "groups":
			v1.Groups = appendList(v1.Groups, kv.Value)
		case "pkgtype":
			pkgType = common.PkgTypeEnum(kv.Value)
			hasPkgType = true
		default:
			return nil, rerrors.NewFileParseError(path, kv.Line, "unknown key %q", kv.Key)
		}
	}

	if err := RequireKeys(path, observed, []string{
		"pkgname", "pkgbase", "pkgver", "pkgdesc", "url", "builddate", "packager", "size", "arch", "license",
	}); err != nil {
		return nil, err
	}

	if !hasPkgType {
		return v1, nil
	}

	switch pkgType {
	case common.PkgTypePkg, common.PkgTypeDebug, common.PkgTypeSrc, common.PkgTypeSplit:
	default:
		return nil, rerrors.NewValidationError("pkgtype", "unknown pkgtype %q", pkgType)
	}
	return &PkgInfoV2{PkgInfoV1: *v1, PkgType: pkgType}, nil
}
