// Package files implements the artifact parsers: .BUILDINFO, .PKGINFO,
// .MTREE, the sync database's desc/files members, and .SRCINFO. Each
// format is a small state machine over an iterator of lines, following the
// same flat, non-hierarchical parser shape the rest of this codebase uses
// for its control-file and index-file readers.
package files

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/etnz/repod/rerrors"
)

// KeyValueLine is one parsed "key = value" line from a .BUILDINFO or
// .PKGINFO style file, with its 1-based source line number for error
// reporting.
type KeyValueLine struct {
	Key   string
	Value string
	Line  int
}

// ScanKeyValue reads "key = value" lines from r, skipping blank lines and
// lines beginning with "#". It returns FileParseError for a line that
// contains no "=" once comments and blank lines are stripped.
func ScanKeyValue(path string, r io.Reader) ([]KeyValueLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []KeyValueLine
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, rerrors.NewFileParseError(path, lineNo, "line has no '=': %q", line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		out = append(out, KeyValueLine{Key: key, Value: value, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, rerrors.NewFileError(path, err)
	}
	return out, nil
}

// RequireKeys returns a FileParseError naming the first key in required
// that does not appear (at least once) in observed.
func RequireKeys(path string, observed map[string]bool, required []string) error {
	for _, k := range required {
		if !observed[k] {
			return rerrors.NewFileParseError(path, 0, "missing required key %q", k)
		}
	}
	return nil
}

// FormatComment returns one makepkg-style PKGINFO comment line recording a
// generating tool and its version ("# Generated by <tool> <version>").
func FormatComment(tool, version string) string {
	return fmt.Sprintf("# Generated by %s %s", tool, version)
}
