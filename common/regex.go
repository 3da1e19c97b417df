package common

import "regexp"

// The following fragments describe the filename shape of a pacman-style
// package archive: {pkgname}-{epoch:pkgver-pkgrel}-{arch}.pkg.tar{.comp},
// and its detached signature, the same name with a trailing ".sig". Any
// directory prefix is permitted since these regular expressions validate
// RepoFile's absolute file_path/symlink_path, not bare filenames.
const (
	pkgnameFragment  = `[a-zA-Z0-9@._+]+(?:-[a-zA-Z0-9@._+]+)*`
	versionFragment  = `(?:\d+:)?[a-zA-Z0-9.+_]+-[0-9]+(?:\.[0-9]+)?`
	archFragment     = `(?:any|x86_64|i686|aarch64|armv7h|riscv64)`
	compressFragment = `(?:\.(?:gz|bz2|xz|zst))?`

	// PackagePathPattern matches an absolute or relative path ending in a
	// pacman package archive filename.
	PackagePathPattern = `(?:.*/)?` + pkgnameFragment + `-` + versionFragment + `-` + archFragment + `\.pkg\.tar` + compressFragment

	// PackageSignaturePathPattern matches the detached-signature sibling of
	// a package archive path.
	PackageSignaturePathPattern = PackagePathPattern + `\.sig`
)

var (
	packagePathRegexp          = regexp.MustCompile(`^` + PackagePathPattern + `$`)
	packageSignaturePathRegexp = regexp.MustCompile(`^` + PackageSignaturePathPattern + `$`)
)

// RegexForFileType returns the compiled regular expression associated with
// a RepoFileEnum member, or nil for an unrecognised kind.
func RegexForFileType(kind RepoFileEnum) *regexp.Regexp {
	switch kind {
	case RepoFilePackage:
		return packagePathRegexp
	case RepoFilePackageSignature:
		return packageSignaturePathRegexp
	default:
		return nil
	}
}
