package files

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/etnz/repod/rerrors"
)

// PackageDesc is the desc member of a sync database entry, holding both
// the per-pkgbase fields (Base, Version, MakeDepends, CheckDepends) and the
// per-package fields. SchemaVersion 1 requires PGPSig to be present;
// SchemaVersion 2 allows it to be absent.
type PackageDesc struct {
	SchemaVersion int

	Filename string
	Name     string
	Base     string
	Version  string
	Desc     string
	Groups   []string
	CSize    int64
	ISize    int64
	MD5Sum   string
	SHA256Sum string
	PGPSig   *string
	URL      string
	License  []string
	Arch     string
	BuildDate int64
	Packager string
	Replaces []string
	Conflicts []string
	Provides []string
	Depends  []string
	OptDepends []string
	MakeDepends []string
	CheckDepends []string
	Backup   []string
}

// Files is the optional files member of a sync database entry: the list of
// file paths (relative, no leading "/") the package installs.
type Files struct {
	SchemaVersion int
	Paths         []string
}

// RenderDesc emits a desc member in the canonical %KEY%\nvalue[\nvalue...]
// block form, one blank line between blocks.
func RenderDesc(d *PackageDesc) []byte {
	var b strings.Builder
	emit := func(key string, values ...string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&b, "%%%s%%\n", key)
		for _, v := range values {
			b.WriteString(v)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	emitScalar := func(key, value string) {
		if value == "" {
			return
		}
		emit(key, value)
	}

	emitScalar("FILENAME", d.Filename)
	emitScalar("NAME", d.Name)
	emitScalar("BASE", d.Base)
	emitScalar("VERSION", d.Version)
	emitScalar("DESC", d.Desc)
	emit("GROUPS", d.Groups...)
	emitScalar("CSIZE", strconv.FormatInt(d.CSize, 10))
	emitScalar("ISIZE", strconv.FormatInt(d.ISize, 10))
	emitScalar("MD5SUM", d.MD5Sum)
	emitScalar("SHA256SUM", d.SHA256Sum)
	if d.PGPSig != nil {
		emitScalar("PGPSIG", *d.PGPSig)
	}
	emitScalar("URL", d.URL)
	emit("LICENSE", d.License...)
	emitScalar("ARCH", d.Arch)
	emitScalar("BUILDDATE", strconv.FormatInt(d.BuildDate, 10))
	emitScalar("PACKAGER", d.Packager)
	emit("REPLACES", d.Replaces...)
	emit("CONFLICTS", d.Conflicts...)
	emit("PROVIDES", d.Provides...)
	emit("DEPENDS", d.Depends...)
	emit("OPTDEPENDS", d.OptDepends...)
	emit("MAKEDEPENDS", d.MakeDepends...)
	emit("CHECKDEPENDS", d.CheckDepends...)
	emit("BACKUP", d.Backup...)

	return []byte(b.String())
}

// RenderFiles emits a files member: a single %FILES% block listing every
// path, one per line, in sorted order.
func RenderFiles(f *Files) []byte {
	if len(f.Paths) == 0 {
		return nil
	}
	sorted := append([]string(nil), f.Paths...)
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteString("%FILES%\n")
	for _, p := range sorted {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// ParseDesc reads a desc member. The schema version is 1 if PGPSIG is
// present, 2 if it is absent (v2 differs from v1 solely by the
// optionality of pgpsig).
func ParseDesc(path string, r io.Reader) (*PackageDesc, error) {
	blocks, err := scanPercentBlocks(path, r)
	if err != nil {
		return nil, err
	}

	d := &PackageDesc{}
	hasPGPSig := false

	for key, values := range blocks {
		joined := strings.Join(values, "\n")
		switch key {
		case "FILENAME":
			d.Filename = joined
		case "NAME":
			d.Name = joined
		case "BASE":
			d.Base = joined
		case "VERSION":
			d.Version = joined
		case "DESC":
			d.Desc = joined
		case "GROUPS":
			d.Groups = values
		case "CSIZE":
			d.CSize, err = strconv.ParseInt(joined, 10, 64)
		case "ISIZE":
			d.ISize, err = strconv.ParseInt(joined, 10, 64)
		case "MD5SUM":
			d.MD5Sum = joined
		case "SHA256SUM":
			d.SHA256Sum = joined
		case "PGPSIG":
			v := joined
			d.PGPSig = &v
			hasPGPSig = true
		case "URL":
			d.URL = joined
		case "LICENSE":
			d.License = values
		case "ARCH":
			d.Arch = joined
		case "BUILDDATE":
			d.BuildDate, err = strconv.ParseInt(joined, 10, 64)
		case "PACKAGER":
			d.Packager = joined
		case "REPLACES":
			d.Replaces = values
		case "CONFLICTS":
			d.Conflicts = values
		case "PROVIDES":
			d.Provides = values
		case "DEPENDS":
			d.Depends = values
		case "OPTDEPENDS":
			d.OptDepends = values
		case "MAKEDEPENDS":
			d.MakeDepends = values
		case "CHECKDEPENDS":
			d.CheckDepends = values
		case "BACKUP":
			d.Backup = values
		default:
			return nil, rerrors.NewFileParseError(path, 0, "unknown desc key %%%s%%", key)
		}
		if err != nil {
			return nil, rerrors.NewValidationError(key, "invalid value: %v", err)
		}
	}

	for _, required := range []string{"FILENAME", "NAME", "BASE", "VERSION", "CSIZE", "ISIZE", "MD5SUM", "SHA256SUM", "ARCH", "BUILDDATE", "PACKAGER"} {
		if _, ok := blocks[required]; !ok {
			return nil, rerrors.NewFileParseError(path, 0, "missing required desc key %%%s%%", required)
		}
	}

	if hasPGPSig {
		d.SchemaVersion = 1
	} else {
		d.SchemaVersion = 2
	}
	return d, nil
}

// ParseFiles reads a files member.
func ParseFiles(path string, r io.Reader) (*Files, error) {
	blocks, err := scanPercentBlocks(path, r)
	if err != nil {
		return nil, err
	}
	f := &Files{SchemaVersion: 1}
	if values, ok := blocks["FILES"]; ok {
		f.Paths = values
	}
	return f, nil
}

// scanPercentBlocks reads the "%KEY%\nvalue\nvalue\n\n" block grammar
// shared by desc and files members, returning each key's accumulated
// value lines.
func scanPercentBlocks(path string, r io.Reader) (map[string][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	blocks := map[string][]string{}
	var currentKey string
	inBlock := false

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") && len(line) > 1 {
			currentKey = strings.TrimSuffix(strings.TrimPrefix(line, "%"), "%")
			if _, exists := blocks[currentKey]; exists {
				return nil, rerrors.NewFileParseError(path, 0, "duplicate block %%%s%%", currentKey)
			}
			blocks[currentKey] = nil
			inBlock = true
			continue
		}
		if line == "" {
			inBlock = false
			continue
		}
		if inBlock {
			blocks[currentKey] = append(blocks[currentKey], line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rerrors.NewFileError(path, err)
	}
	return blocks, nil
}
