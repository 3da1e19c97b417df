// Package common holds the constrained value types shared across repod:
// CPU architectures, compression kinds, checksum shapes, field-type tags,
// package type tags, repo file kinds, and action/task states.
package common

// ArchitectureEnum constrains the CPU architecture a package targets.
// "any" is the architecture-independent wildcard that matches every target
// architecture in MatchingArchitectureCheck.
type ArchitectureEnum string

const (
	ArchitectureAny     ArchitectureEnum = "any"
	ArchitectureX86_64  ArchitectureEnum = "x86_64"
	ArchitectureI686    ArchitectureEnum = "i686"
	ArchitectureAarch64 ArchitectureEnum = "aarch64"
	ArchitectureArmv7h  ArchitectureEnum = "armv7h"
	ArchitectureRISCV64 ArchitectureEnum = "riscv64"
)

// Valid reports whether a is one of the known architecture identifiers.
func (a ArchitectureEnum) Valid() bool {
	switch a {
	case ArchitectureAny, ArchitectureX86_64, ArchitectureI686, ArchitectureAarch64, ArchitectureArmv7h, ArchitectureRISCV64:
		return true
	}
	return false
}

// CompressionEnum constrains the compression wrapping a package archive or
// sync database tar stream.
type CompressionEnum string

const (
	CompressionNone       CompressionEnum = "none"
	CompressionBzip2      CompressionEnum = "bzip2"
	CompressionGzip       CompressionEnum = "gzip"
	CompressionLzma       CompressionEnum = "lzma"
	CompressionZstandard  CompressionEnum = "zstandard"
)

// SuffixFor returns the canonical filename suffix for a compression kind
// (excluding the leading ".tar").
func (c CompressionEnum) SuffixFor() string {
	switch c {
	case CompressionNone:
		return ""
	case CompressionBzip2:
		return ".bz2"
	case CompressionGzip:
		return ".gz"
	case CompressionLzma:
		return ".xz"
	case CompressionZstandard:
		return ".zst"
	}
	return ""
}

// CompressionFromSuffix maps a filename suffix back to a CompressionEnum.
// It returns ok=false for an unrecognised suffix.
func CompressionFromSuffix(suffix string) (CompressionEnum, bool) {
	switch suffix {
	case "":
		return CompressionNone, true
	case ".bz2":
		return CompressionBzip2, true
	case ".gz":
		return CompressionGzip, true
	case ".xz":
		return CompressionLzma, true
	case ".zst":
		return CompressionZstandard, true
	}
	return "", false
}

// FieldTypeEnum tags how a single artifact key should be parsed: STRING and
// INT error on a duplicate key, STRING_LIST appends, KEY_VALUE_LIST parses
// "key=value" entries into a map.
type FieldTypeEnum int

const (
	FieldTypeString FieldTypeEnum = iota
	FieldTypeInt
	FieldTypeStringList
	FieldTypeKeyValueList
)

// PkgTypeEnum tags the kind of binary package a PkgInfo v2 record describes.
type PkgTypeEnum string

const (
	PkgTypePkg   PkgTypeEnum = "pkg"
	PkgTypeDebug PkgTypeEnum = "debug"
	PkgTypeSrc   PkgTypeEnum = "src"
	PkgTypeSplit PkgTypeEnum = "split"
)

// RepoFileEnum tags which filename shape a RepoFile's paths must match.
type RepoFileEnum string

const (
	RepoFilePackage          RepoFileEnum = "package"
	RepoFilePackageSignature RepoFileEnum = "package_signature"
)

// ActionStateEnum is the state of a Check or a Task.
type ActionStateEnum string

const (
	ActionStateNotStarted        ActionStateEnum = "NOT_STARTED"
	ActionStateStarted           ActionStateEnum = "STARTED"
	ActionStateSuccess           ActionStateEnum = "SUCCESS"
	ActionStateSuccessTask       ActionStateEnum = "SUCCESS_TASK"
	ActionStateFailed            ActionStateEnum = "FAILED"
	ActionStateFailedTask        ActionStateEnum = "FAILED_TASK"
	ActionStateFailedDependency  ActionStateEnum = "FAILED_DEPENDENCY"
	ActionStateFailedPreCheck    ActionStateEnum = "FAILED_PRE_CHECK"
	ActionStateFailedPostCheck   ActionStateEnum = "FAILED_POST_CHECK"
	ActionStateFailedUndoTask    ActionStateEnum = "FAILED_UNDO_TASK"
	ActionStateFailedUndoDep     ActionStateEnum = "FAILED_UNDO_DEPENDENCY"
)

// IsTerminalSuccess reports whether s represents a successful terminal
// state for a completed run() (as opposed to SUCCESS_TASK, which is an
// internal do()-only result that run() upgrades to SUCCESS).
func (s ActionStateEnum) IsTerminalSuccess() bool {
	return s == ActionStateSuccess
}
