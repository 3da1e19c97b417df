// Package syncdb reads and writes sync databases: the {repo}.db/{repo}.files
// tar archives pacman itself consumes, each member a per-package desc (and,
// for .files databases, a files list) nested under a {name}-{version}/
// directory. It streams throughout rather than buffering whole archives,
// since a .files database for a large repository can run into the hundreds
// of megabytes.
package syncdb

import (
	"archive/tar"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/files"
	"github.com/etnz/repod/management"
	"github.com/etnz/repod/rerrors"
)

// dirMode/fileMode are the fixed permission bits used for every sync
// database entry; uid/gid are left at zero (root), and the mtime is pinned
// by fixedMtime below.
const (
	dirMode  = 0o755
	fileMode = 0o644
)

// fixedMtime is the pinned modification time for every tar member syncdb
// writes, so that writing identical content twice produces byte-identical
// archives regardless of wall-clock time.
var fixedMtime = time.Unix(0, 0).UTC()

// dbAccum accumulates one OutputPackageBase under construction while
// reading a sync database, alongside an index from pkgname to the package
// within it so a later "/files" member can find its matching desc.
type dbAccum struct {
	base   *management.OutputPackageBase
	byName map[string]*management.OutputPackage
}

// Kind distinguishes the desc-only database from the desc+files database.
type Kind int

const (
	KindDesc Kind = iota
	KindFiles
)

// Write streams bases into a fresh sync database tar on w. For each
// package of each pkgbase it writes {name}-{version}/ (directory), then
// {name}-{version}/desc rendered from the chosen desc schema, and, when
// kind is KindFiles, {name}-{version}/files.
func Write(w io.Writer, bases []*management.OutputPackageBase, kind Kind, descVersion management.DescVersion) error {
	tw := tar.NewWriter(w)

	for _, base := range bases {
		models, err := base.GetPackagesAsModels(descVersion)
		if err != nil {
			return err
		}
		for _, m := range models {
			entryName := fmt.Sprintf("%s-%s", m.Desc.Name, base.Version)

			if err := writeDirHeader(tw, entryName); err != nil {
				return err
			}

			descBytes := files.RenderDesc(m.Desc)
			if err := writeFileMember(tw, entryName+"/desc", descBytes); err != nil {
				return err
			}

			if kind == KindFiles {
				var filesBytes []byte
				if m.Files != nil {
					filesBytes = files.RenderFiles(m.Files)
				}
				if err := writeFileMember(tw, entryName+"/files", filesBytes); err != nil {
					return err
				}
			}
		}
	}

	return tw.Close()
}

func writeDirHeader(tw *tar.Writer, name string) error {
	hdr := &tar.Header{
		Name:     name + "/",
		Typeflag: tar.TypeDir,
		Mode:     dirMode,
		ModTime:  fixedMtime,
	}
	return tw.WriteHeader(hdr)
}

func writeFileMember(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     fileMode,
		Size:     int64(len(content)),
		ModTime:  fixedMtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// Read walks a sync database archive (already decompressed by the caller
// via the archive package), recovering one OutputPackageBase per distinct
// pkgbase named in the desc members it finds. Members are matched by
// "/desc" or "/files" suffix. A desc member's package is named by its own
// %NAME% field, and entries fold together by %BASE%; a files member's
// pkgname is recovered from its entry directory name by stripping the last
// two hyphen-delimited fields, and must follow its matching desc member.
func Read(r io.Reader) ([]*management.OutputPackageBase, error) {
	tr := tar.NewReader(r)

	bases := map[string]*dbAccum{}
	var order []string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, rerrors.NewFileError("syncdb", fmt.Errorf("reading tar stream: %w", err))
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}

		switch {
		case strings.HasSuffix(hdr.Name, "/desc"):
			desc, err := files.ParseDesc(hdr.Name, tr)
			if err != nil {
				return nil, err
			}
			a, ok := bases[desc.Base]
			if !ok {
				a = &dbAccum{
					base: &management.OutputPackageBase{
						Base:          desc.Base,
						Version:       desc.Version,
						Packager:      desc.Packager,
						Makedepends:   desc.MakeDepends,
						SchemaVersion: management.CurrentSchemaVersion,
					},
					byName: map[string]*management.OutputPackage{},
				}
				bases[desc.Base] = a
				order = append(order, desc.Base)
			}
			op := outputPackageFromDesc(desc)
			a.base.Packages = append(a.base.Packages, op)
			a.byName[desc.Name] = &a.base.Packages[len(a.base.Packages)-1]

		case strings.HasSuffix(hdr.Name, "/files"):
			filesBlock, err := files.ParseFiles(hdr.Name, tr)
			if err != nil {
				return nil, err
			}
			pkgname, _, err := splitEntryName(strings.TrimSuffix(hdr.Name, "/files"))
			if err != nil {
				return nil, err
			}
			pkgbase, ok := findBaseByPackage(bases, pkgname)
			if !ok {
				return nil, rerrors.NewFileParseError(hdr.Name, 0, "files member %q has no matching desc member", hdr.Name)
			}
			bases[pkgbase].byName[pkgname].Files = &management.OutputFiles{Files: filesBlock.Paths}

		default:
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return nil, rerrors.NewFileError(hdr.Name, err)
			}
		}
	}

	out := make([]*management.OutputPackageBase, 0, len(order))
	for _, base := range order {
		out = append(out, bases[base].base)
	}
	return out, nil
}

func outputPackageFromDesc(d *files.PackageDesc) management.OutputPackage {
	return management.OutputPackage{
		Arch: d.Arch, Backup: d.Backup, Builddate: d.BuildDate,
		Checkdepends: d.CheckDepends, Conflicts: d.Conflicts, Csize: d.CSize,
		Depends: d.Depends, Desc: d.Desc, Filename: d.Filename,
		Groups: d.Groups, Isize: d.ISize, License: d.License,
		Md5sum: d.MD5Sum, Name: d.Name, Optdepends: d.OptDepends,
		Pgpsig: d.PGPSig, Provides: d.Provides, Replaces: d.Replaces,
		Sha256sum: d.SHA256Sum, URL: d.URL,
	}
}

func findBaseByPackage(bases map[string]*dbAccum, pkgname string) (string, bool) {
	for base, a := range bases {
		if _, ok := a.byName[pkgname]; ok {
			return base, true
		}
	}
	return "", false
}

// splitEntryName recovers (pkgname, version) from a "{name}-{version}"
// sync database entry directory name, stripping the last two hyphen
// delimited fields (pkgver and pkgrel).
func splitEntryName(entry string) (pkgname, version string, err error) {
	parts := strings.Split(entry, "-")
	if len(parts) < 3 {
		return "", "", rerrors.NewFileParseError(entry, 0, "malformed sync database entry name %q", entry)
	}
	pkgname = strings.Join(parts[:len(parts)-2], "-")
	version = strings.Join(parts[len(parts)-2:], "-")
	return pkgname, version, nil
}

// SuffixForCompression returns the tar-and-compression suffix that follows
// ".db" or ".files" in a sync database filename, e.g. ".tar.zst" (giving
// "{repo}.db.tar.zst"), or ".tar" for no compression.
func SuffixForCompression(kind common.CompressionEnum) string {
	return ".tar" + kind.SuffixFor()
}
