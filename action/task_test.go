package action

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/management"
)

// fakeTask is a minimal Task for exercising Run/Undo's control flow
// without going through a concrete task's real side effects.
type fakeTask struct {
	BaseTask
	doCalls   int
	undoCalls int
	doState   common.ActionStateEnum
	doErr     error
}

func newFakeTask(deps []Task) *fakeTask {
	t := &fakeTask{doState: common.ActionStateSuccessTask}
	t.dependencies = deps
	return t
}

func (f *fakeTask) Do() (common.ActionStateEnum, error) {
	f.doCalls++
	return f.doState, f.doErr
}

func (f *fakeTask) Undo() error {
	f.undoCalls++
	return nil
}

func TestRunSucceedsAndIsIdempotent(t *testing.T) {
	ft := newFakeTask(nil)
	if err := Run(ft); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ft.State() != common.ActionStateSuccess {
		t.Fatalf("State = %v", ft.State())
	}
	if err := Run(ft); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if ft.doCalls != 1 {
		t.Fatalf("Do called %d times, want 1 (idempotent)", ft.doCalls)
	}
}

func TestRunFailedDependencyShortCircuits(t *testing.T) {
	failing := newFakeTask(nil)
	failing.doState = common.ActionStateFailedTask
	parent := newFakeTask([]Task{failing})

	if err := Run(parent); err == nil {
		t.Fatal("expected error from failing dependency")
	}
	if parent.State() != common.ActionStateFailedDependency {
		t.Fatalf("State = %v", parent.State())
	}
	if parent.doCalls != 0 {
		t.Fatal("Do should not run when a dependency failed")
	}
}

func TestRunFailedPreCheckSkipsDo(t *testing.T) {
	ft := newFakeTask(nil)
	ft.preChecks = []Check{&FuncCheck{Fn: func() error { return os.ErrInvalid }}}

	if err := Run(ft); err == nil {
		t.Fatal("expected pre-check failure")
	}
	if ft.State() != common.ActionStateFailedPreCheck {
		t.Fatalf("State = %v", ft.State())
	}
	if ft.doCalls != 0 {
		t.Fatal("Do should not run when a pre-check failed")
	}
}

func TestUndoReversesTaskAndItsDependency(t *testing.T) {
	first := newFakeTask(nil)
	second := newFakeTask([]Task{first})
	if err := Run(second); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := Undo(second); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if second.undoCalls != 1 || first.undoCalls != 1 {
		t.Fatalf("undoCalls: second=%d first=%d", second.undoCalls, first.undoCalls)
	}
	if second.State() != common.ActionStateNotStarted || first.State() != common.ActionStateNotStarted {
		t.Fatalf("expected NOT_STARTED after undo, got second=%v first=%v", second.State(), first.State())
	}
}

func buildTestPackageTar(t *testing.T, name, base string) []byte {
	t.Helper()
	buildinfo := strings.Join([]string{
		"format = 1",
		"pkgname = " + name,
		"pkgbase = " + base,
		"pkgver = 1.0.0-1",
		"pkgarch = x86_64",
		"pkgbuild_sha256sum = " + strings.Repeat("a", 64),
		"packager = Jane Doe <jane@example.com>",
		"builddate = 1700000000",
		"builddir = /build",
		"buildenv = check",
		"options = strip",
		"installed = bar-1:2.0-1-x86_64",
		"",
	}, "\n")
	pkginfo := strings.Join([]string{
		"pkgname = " + name,
		"pkgbase = " + base,
		"pkgver = 1.0.0-1",
		"pkgdesc = a test package",
		"url = https://example.com",
		"builddate = 1700000000",
		"packager = Jane Doe <jane@example.com>",
		"size = 1024",
		"arch = x86_64",
		"license = MIT",
		"",
	}, "\n")

	var mtreeGz bytes.Buffer
	gw := gzip.NewWriter(&mtreeGz)
	gw.Write([]byte("/set type=file uid=0 gid=0 mode=644\n./usr/bin/" + name + " time=1700000000.0 size=4\n"))
	gw.Close()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, f := range []struct {
		name string
		body []byte
	}{
		{".BUILDINFO", []byte(buildinfo)},
		{".PKGINFO", []byte(pkginfo)},
		{".MTREE", mtreeGz.Bytes()},
		{"usr/bin/" + name, []byte("bin!")},
	} {
		hdr := &tar.Header{Name: f.name, Size: int64(len(f.body)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write(f.body); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	tw.Close()
	return tarBuf.Bytes()
}

func buildTestDebugPackageTar(t *testing.T, name, base string) []byte {
	t.Helper()
	buildinfo := strings.Join([]string{
		"format = 1",
		"pkgname = " + name,
		"pkgbase = " + base,
		"pkgver = 1.0.0-1",
		"pkgarch = x86_64",
		"pkgbuild_sha256sum = " + strings.Repeat("a", 64),
		"packager = Jane Doe <jane@example.com>",
		"builddate = 1700000000",
		"builddir = /build",
		"buildenv = check",
		"options = strip",
		"installed = bar-1:2.0-1-x86_64",
		"",
	}, "\n")
	pkginfo := strings.Join([]string{
		"pkgname = " + name,
		"pkgbase = " + base,
		"pkgver = 1.0.0-1",
		"pkgdesc = a test package's debug symbols",
		"url = https://example.com",
		"builddate = 1700000000",
		"packager = Jane Doe <jane@example.com>",
		"size = 1024",
		"arch = x86_64",
		"license = MIT",
		"pkgtype = debug",
		"",
	}, "\n")

	var mtreeGz bytes.Buffer
	gw := gzip.NewWriter(&mtreeGz)
	gw.Write([]byte("/set type=file uid=0 gid=0 mode=644\n./usr/lib/debug/" + name + " time=1700000000.0 size=4\n"))
	gw.Close()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, f := range []struct {
		name string
		body []byte
	}{
		{".BUILDINFO", []byte(buildinfo)},
		{".PKGINFO", []byte(pkginfo)},
		{".MTREE", mtreeGz.Bytes()},
		{"usr/lib/debug/" + name, []byte("dbg!")},
	} {
		hdr := &tar.Header{Name: f.name, Size: int64(len(f.body)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write(f.body); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	tw.Close()
	return tarBuf.Bytes()
}

func TestCreateOutputPackageBasesGroupsByPkgbase(t *testing.T) {
	sources := []PackageSource{
		{Filename: "foo-1.0.0-1-x86_64.pkg.tar", Data: buildTestPackageTar(t, "foo", "group")},
		{Filename: "bar-1.0.0-1-x86_64.pkg.tar", Data: buildTestPackageTar(t, "bar", "group")},
	}
	create := NewCreateOutputPackageBases(sources, nil)
	if err := Run(create); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(create.Result) != 1 {
		t.Fatalf("Result has %d bases, want 1", len(create.Result))
	}
	if create.Result[0].Base != "group" {
		t.Fatalf("Base = %q", create.Result[0].Base)
	}
	if len(create.Result[0].Packages) != 2 {
		t.Fatalf("Packages = %d, want 2", len(create.Result[0].Packages))
	}

	if err := Undo(create); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if create.Result != nil {
		t.Fatal("expected Result cleared after undo")
	}
}

func TestWriteOutputPackageBasesToTmpFileInDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := &management.OutputPackageBase{Base: "foo", Version: "1.0.0-1", SchemaVersion: management.CurrentSchemaVersion}
	write := NewWriteOutputPackageBasesToTmpFileInDir(dir, func() []*management.OutputPackageBase {
		return []*management.OutputPackageBase{base}
	}, nil)

	if err := Run(write); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tmp := filepath.Join(dir, "foo.json.tmp")
	if _, err := os.Stat(tmp); err != nil {
		t.Fatalf("expected %s to exist: %v", tmp, err)
	}

	if err := Undo(write); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatal("expected tmp file removed after undo")
	}
}

func TestMoveTmpFilesBacksUpExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "foo.json.tmp")
	dst := filepath.Join(dir, "foo.json")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile src: %v", err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile dst: %v", err)
	}

	move := NewMoveTmpFiles(func() map[string]string {
		return map[string]string{src: dst}
	}, nil)
	if err := Run(move); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "new" {
		t.Fatalf("dst content = %q, %v", data, err)
	}
	if _, err := os.Stat(dst + ".bkp"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}

	if err := Undo(move); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	data, err = os.ReadFile(dst)
	if err != nil || string(data) != "old" {
		t.Fatalf("dst content after undo = %q, %v", data, err)
	}
	if _, err := os.ReadFile(src); err != nil {
		t.Fatalf("expected src restored: %v", err)
	}
}

func TestFilesToRepoDirCopiesAndLinks(t *testing.T) {
	poolDir := t.TempDir()
	repoDir := t.TempDir()
	ftr := NewFilesToRepoDir(poolDir, repoDir, func() []RepoFileInput {
		return []RepoFileInput{{Name: "foo-1.0.0-1-x86_64.pkg.tar.zst", Data: []byte("payload"), Kind: common.RepoFilePackage}}
	}, nil)

	if err := Run(ftr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	poolFile := filepath.Join(poolDir, "foo-1.0.0-1-x86_64.pkg.tar.zst")
	if data, err := os.ReadFile(poolFile); err != nil || string(data) != "payload" {
		t.Fatalf("pool file: data=%q err=%v", data, err)
	}
	link := filepath.Join(repoDir, "foo-1.0.0-1-x86_64.pkg.tar.zst")
	if _, err := os.Lstat(link); err != nil {
		t.Fatalf("expected symlink: %v", err)
	}

	if err := Undo(ftr); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatal("expected symlink removed after undo")
	}
	if _, err := os.Stat(poolFile); !os.IsNotExist(err) {
		t.Fatal("expected pool file removed after undo")
	}
}

func TestRemoveBackupFilesDeletesGivenPaths(t *testing.T) {
	dir := t.TempDir()
	bkp := filepath.Join(dir, "foo.json.bkp")
	if err := os.WriteFile(bkp, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	remove := NewRemoveBackupFiles(func() []string { return []string{bkp} }, nil)
	if err := Run(remove); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(bkp); !os.IsNotExist(err) {
		t.Fatal("expected backup file removed")
	}
}

func TestAddToRepoAggregatesDependencies(t *testing.T) {
	a := newFakeTask(nil)
	b := newFakeTask(nil)
	root := NewAddToRepo([]Task{a, b})
	if err := Run(root); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.doCalls != 1 || b.doCalls != 1 {
		t.Fatalf("doCalls: a=%d b=%d", a.doCalls, b.doCalls)
	}
	if root.State() != common.ActionStateSuccess {
		t.Fatalf("State = %v", root.State())
	}
}
