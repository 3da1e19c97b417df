// Package repofile implements RepoFile: a package artifact's pair of
// locations within a repository layout (its canonical pool file and the
// symlink that exposes it under a specific repo/arch view), plus the
// shared-base relative-symlink arithmetic a layout with multiple views of
// the same pool needs. It follows a "do the filesystem operation, record
// enough to undo it" shape, generalized from a single flat directory to
// pacman's pool/view split.
package repofile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/rerrors"
)

// RepoFile is one artifact (a package or a package signature) tracked at
// two paths: FilePath, its canonical location (usually inside a package
// pool), and SymlinkPath, the path a repository view exposes it at. Kind
// constrains which filename shape both paths must match.
type RepoFile struct {
	Kind        common.RepoFileEnum
	FilePath    string
	SymlinkPath string
}

// New validates filePath and symlinkPath against kind's filename pattern
// and returns a RepoFile. Both paths must be absolute.
func New(kind common.RepoFileEnum, filePath, symlinkPath string) (*RepoFile, error) {
	if !filepath.IsAbs(filePath) {
		return nil, rerrors.NewValidationError("file_path", "not an absolute path: %q", filePath)
	}
	if !filepath.IsAbs(symlinkPath) {
		return nil, rerrors.NewValidationError("symlink_path", "not an absolute path: %q", symlinkPath)
	}
	re := common.RegexForFileType(kind)
	if !re.MatchString(filepath.Base(filePath)) {
		return nil, rerrors.NewValidationError("file_path", "does not match %s filename shape: %q", kind, filePath)
	}
	if !re.MatchString(filepath.Base(symlinkPath)) {
		return nil, rerrors.NewValidationError("symlink_path", "does not match %s filename shape: %q", kind, symlinkPath)
	}
	return &RepoFile{Kind: kind, FilePath: filePath, SymlinkPath: symlinkPath}, nil
}

// CopyFrom copies src's content to r.FilePath using the write-tmp,
// backup-old, rename pattern: the destination is written to a sibling
// "<name>.tmp" file, any pre-existing FilePath is renamed to
// "<name>.bkp", and the tmp file is renamed into place. src and FilePath
// must reside on the same filesystem for the rename steps to be atomic.
func (r *RepoFile) CopyFrom(src io.Reader) error {
	tmp := r.FilePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.FilePath), 0o755); err != nil {
		return rerrors.NewFileError(r.FilePath, err)
	}
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return rerrors.NewFileError(tmp, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return rerrors.NewFileError(tmp, fmt.Errorf("writing content: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return rerrors.NewFileError(tmp, err)
	}
	return r.commitTmp(tmp)
}

// MoveFrom moves the file at srcPath to r.FilePath, using the same
// write-tmp/backup-old/rename pattern as CopyFrom but via rename rather
// than a full copy.
func (r *RepoFile) MoveFrom(srcPath string) error {
	tmp := r.FilePath + ".tmp"
	if err := os.Rename(srcPath, tmp); err != nil {
		return rerrors.NewFileError(srcPath, err)
	}
	return r.commitTmp(tmp)
}

func (r *RepoFile) commitTmp(tmp string) error {
	if _, err := os.Lstat(r.FilePath); err == nil {
		bkp := r.FilePath + ".bkp"
		if err := os.Rename(r.FilePath, bkp); err != nil {
			return rerrors.NewFileError(r.FilePath, fmt.Errorf("backing up existing file: %w", err))
		}
	} else if !os.IsNotExist(err) {
		return rerrors.NewFileError(r.FilePath, err)
	}
	if err := os.Rename(tmp, r.FilePath); err != nil {
		return rerrors.NewFileError(tmp, fmt.Errorf("renaming into place: %w", err))
	}
	return nil
}

// Link creates the relative symlink at SymlinkPath pointing at FilePath,
// computed via RelativeToSharedBase so the two may live under entirely
// different view directories.
func (r *RepoFile) Link() error {
	if err := os.MkdirAll(filepath.Dir(r.SymlinkPath), 0o755); err != nil {
		return rerrors.NewFileError(r.SymlinkPath, err)
	}
	target, err := RelativeToSharedBase(r.FilePath, r.SymlinkPath)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, r.SymlinkPath); err != nil {
		return rerrors.NewFileError(r.SymlinkPath, err)
	}
	return nil
}

// Unlink removes SymlinkPath. It is not an error if SymlinkPath is
// already absent.
func (r *RepoFile) Unlink() error {
	if err := os.Remove(r.SymlinkPath); err != nil && !os.IsNotExist(err) {
		return rerrors.NewFileError(r.SymlinkPath, err)
	}
	return nil
}

// Remove removes FilePath, the canonical pool file. It is not an error if
// FilePath is already absent.
func (r *RepoFile) Remove() error {
	if err := os.Remove(r.FilePath); err != nil && !os.IsNotExist(err) {
		return rerrors.NewFileError(r.FilePath, err)
	}
	return nil
}

// SharedBasePath returns the longest common ancestor directory of a and b.
// Both must be absolute paths; it returns a ValidationError otherwise.
func SharedBasePath(a, b string) (string, error) {
	if !filepath.IsAbs(a) {
		return "", rerrors.NewValidationError("a", "not an absolute path: %q", a)
	}
	if !filepath.IsAbs(b) {
		return "", rerrors.NewValidationError("b", "not an absolute path: %q", b)
	}
	pa := strings.Split(filepath.Clean(a), string(filepath.Separator))
	pb := strings.Split(filepath.Clean(b), string(filepath.Separator))

	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	i := 0
	for i < n && pa[i] == pb[i] {
		i++
	}
	// pa[0] and pb[0] are the empty component before the leading
	// separator, so i == 1 means only the root is shared.
	if i <= 1 {
		return string(filepath.Separator), nil
	}
	return strings.Join(pa[:i], string(filepath.Separator)), nil
}

// RelativeToSharedBase computes the relative path, as seen from pathB's
// directory, to reach pathA: it walks up from pathB's parent to the
// shared base directory with ".." segments, then back down to pathA. This
// is the symlink target a repository view's entry at pathB should use to
// reach a pool file at pathA that may live under a sibling directory tree.
// Both must be absolute paths; it returns a ValidationError otherwise.
func RelativeToSharedBase(pathA, pathB string) (string, error) {
	shared, err := SharedBasePath(pathA, pathB)
	if err != nil {
		return "", err
	}

	parentB := filepath.Dir(pathB)
	partsParentB := splitClean(parentB)
	partsShared := splitClean(shared)
	parentDistance := len(partsParentB) - len(partsShared)

	var up []string
	for i := 0; i < parentDistance; i++ {
		up = append(up, "..")
	}

	relA, err := filepath.Rel(shared, pathA)
	if err != nil {
		return "", rerrors.NewValidationError("pathA", "computing relative path from %q to %q: %v", shared, pathA, err)
	}

	return filepath.Join(append(up, relA)...), nil
}

func splitClean(p string) []string {
	clean := filepath.Clean(p)
	if clean == string(filepath.Separator) {
		return nil
	}
	return strings.Split(strings.TrimPrefix(clean, string(filepath.Separator)), string(filepath.Separator))
}
