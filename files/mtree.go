package files

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/etnz/repod/rerrors"
)

// MTreeEntryType is the file kind recorded for an .MTREE entry.
type MTreeEntryType string

const (
	MTreeBlock  MTreeEntryType = "block"
	MTreeChar   MTreeEntryType = "char"
	MTreeDir    MTreeEntryType = "dir"
	MTreeFifo   MTreeEntryType = "fifo"
	MTreeFile   MTreeEntryType = "file"
	MTreeLink   MTreeEntryType = "link"
	MTreeSocket MTreeEntryType = "socket"
)

// MTreeEntry is one decoded line of an .MTREE listing.
type MTreeEntry struct {
	Path       string
	Mode       string
	Type       MTreeEntryType
	Gid        int
	Uid        int
	Size       int64
	MTime      float64
	MD5        string
	SHA256     string
	Link       string
	HasLink    bool
}

// LinkMode selects how MTree link targets are reported by ResolvedLink.
type LinkMode int

const (
	LinkLiteral LinkMode = iota
	LinkResolved
)

// ResolvedLink returns e.Link as-is in LinkLiteral mode, or joined against
// the parent directory of e.Path and lexically normalised in LinkResolved
// mode (relative link targets are always interpreted relative to the
// entry's own containing directory, never the archive root).
func (e MTreeEntry) ResolvedLink(mode LinkMode) string {
	if !e.HasLink || mode == LinkLiteral || strings.HasPrefix(e.Link, "/") {
		return e.Link
	}
	dir := "/"
	if i := strings.LastIndexByte(e.Path, '/'); i >= 0 {
		dir = e.Path[:i]
	}
	return normalizeSlashPath(dir + "/" + e.Link)
}

func normalizeSlashPath(p string) string {
	parts := strings.Split(p, "/")
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return "/" + strings.Join(out, "/")
}

// DecodeMTreePath reverses mtree's path encoding: backslash-octal escapes
// (\NNN) are replaced with the corresponding byte, and the resulting byte
// sequence is interpreted as UTF-8.
func DecodeMTreePath(encoded string) string {
	var b strings.Builder
	i := 0
	for i < len(encoded) {
		if encoded[i] == '\\' && i+3 < len(encoded) {
			if n, err := strconv.ParseUint(encoded[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 4
				continue
			}
		}
		b.WriteByte(encoded[i])
		i++
	}
	return b.String()
}

// EncodeMTreePath escapes bytes outside the safe printable set (plus space,
// '=', and '#') as backslash-octal sequences, the inverse of
// DecodeMTreePath.
func EncodeMTreePath(decoded string) string {
	var b strings.Builder
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		if c <= 0x20 || c >= 0x7f || c == '=' || c == '#' || c == '\\' {
			fmt.Fprintf(&b, "\\%03o", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseMTree reads an already-decompressed .MTREE stream: a sequence of
// lines, each either a "/set k=v ..." directive establishing defaults for
// subsequent entries, a comment ("#"), or a "path k=v ..." entry line.
func ParseMTree(path string, r io.Reader) ([]MTreeEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	defaults := map[string]string{}
	var entries []MTreeEntry
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		head := fields[0]
		kvs := map[string]string{}
		for k, v := range defaults {
			kvs[k] = v
		}
		for _, f := range fields[1:] {
			idx := strings.IndexByte(f, '=')
			if idx < 0 {
				return nil, rerrors.NewFileParseError(path, lineNo, "malformed key=value pair %q", f)
			}
			kvs[f[:idx]] = f[idx+1:]
		}

		if head == "/set" {
			for k, v := range kvs {
				defaults[k] = v
			}
			continue
		}

		entry, err := mtreeEntryFromFields(path, lineNo, head, kvs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, rerrors.NewFileError(path, err)
	}
	return entries, nil
}

func mtreeEntryFromFields(path string, lineNo int, rawPath string, kvs map[string]string) (MTreeEntry, error) {
	e := MTreeEntry{Path: DecodeMTreePath(rawPath)}

	if t, ok := kvs["type"]; ok {
		switch MTreeEntryType(t) {
		case MTreeBlock, MTreeChar, MTreeDir, MTreeFifo, MTreeFile, MTreeLink, MTreeSocket:
			e.Type = MTreeEntryType(t)
		default:
			return e, rerrors.NewValidationError("type", "unknown mtree type %q", t)
		}
	}
	if m, ok := kvs["mode"]; ok {
		if len(m) != 3 && len(m) != 4 {
			return e, rerrors.NewValidationError("mode", "mode must be 3 or 4 octal digits: %q", m)
		}
		e.Mode = m
	}
	if v, ok := kvs["gid"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 999 {
			return e, rerrors.NewValidationError("gid", "gid out of range: %q", v)
		}
		e.Gid = n
	}
	if v, ok := kvs["uid"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 999 {
			return e, rerrors.NewValidationError("uid", "uid out of range: %q", v)
		}
		e.Uid = n
	}
	if v, ok := kvs["size"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return e, rerrors.NewValidationError("size", "size must be non-negative: %q", v)
		}
		e.Size = n
	}
	if v, ok := kvs["time"]; ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return e, rerrors.NewValidationError("time", "mtime must be non-negative: %q", v)
		}
		e.MTime = n
	}
	if v, ok := kvs["md5digest"]; ok {
		if len(v) != 32 {
			return e, rerrors.NewValidationError("md5digest", "not 32 hex characters: %q", v)
		}
		e.MD5 = v
	}
	if v, ok := kvs["sha256digest"]; ok {
		if len(v) != 64 {
			return e, rerrors.NewValidationError("sha256digest", "not 64 hex characters: %q", v)
		}
		e.SHA256 = v
	}
	if v, ok := kvs["link"]; ok {
		e.Link = v
		e.HasLink = true
	}
	_ = lineNo
	return e, nil
}
