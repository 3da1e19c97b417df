package action

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/etnz/repod/archive"
	"github.com/etnz/repod/common"
	"github.com/etnz/repod/files"
	"github.com/etnz/repod/management"
	"github.com/etnz/repod/pkgfile"
	"github.com/etnz/repod/repofile"
	"github.com/etnz/repod/syncdb"
)

// Task is one idempotent, undoable unit of work in the DAG: its own
// do()/undo(), plus the dependencies and pre/post checks that gate it.
// Only types embedding BaseTask can implement Task, since setState is
// unexported — Run/Undo are the only code paths allowed to transition a
// task's state.
type Task interface {
	Deps() []Task
	PreChecks() []Check
	PostChecks() []Check
	Do() (common.ActionStateEnum, error)
	Undo() error
	State() common.ActionStateEnum
	setState(common.ActionStateEnum)
}

// BaseTask supplies the bookkeeping every concrete task shares:
// dependency list, pre/post checks, and current state.
type BaseTask struct {
	dependencies []Task
	preChecks    []Check
	postChecks   []Check
	state        common.ActionStateEnum
}

func (b *BaseTask) Deps() []Task                      { return b.dependencies }
func (b *BaseTask) PreChecks() []Check                { return b.preChecks }
func (b *BaseTask) PostChecks() []Check               { return b.postChecks }
func (b *BaseTask) State() common.ActionStateEnum     { return b.state }
func (b *BaseTask) setState(s common.ActionStateEnum) { b.state = s }

// Run executes task's six-step contract:
//  1. Run dependencies in order; any non-success terminal dependency
//     state fails this task with FAILED_DEPENDENCY.
//  2. A task already in SUCCESS returns immediately (idempotency).
//  3. Pre-checks run in order; the first failure sets FAILED_PRE_CHECK.
//  4. Do() runs; anything but SUCCESS_TASK is returned as-is.
//  5. Post-checks run in order; the first failure sets FAILED_POST_CHECK.
//  6. State becomes SUCCESS.
func Run(t Task) error {
	for _, dep := range t.Deps() {
		// failures are recorded on dep itself; this task's own state is
		// set from the terminal states below, once every dep has run.
		_ = Run(dep)
	}
	for _, dep := range t.Deps() {
		if !dep.State().IsTerminalSuccess() {
			t.setState(common.ActionStateFailedDependency)
			return fmt.Errorf("dependency did not reach SUCCESS (state=%s)", dep.State())
		}
	}

	if t.State() == common.ActionStateSuccess {
		return nil
	}

	t.setState(common.ActionStateStarted)
	for _, c := range t.PreChecks() {
		if err := c.Run(); err != nil {
			t.setState(common.ActionStateFailedPreCheck)
			listener(EventCheckFailed{Task: taskName(t), Phase: "pre", Err: err.Error()})
			return fmt.Errorf("pre-check failed: %w", err)
		}
	}

	doState, err := t.Do()
	if err != nil {
		if doState == "" {
			doState = common.ActionStateFailedTask
		}
		t.setState(doState)
		listener(EventTaskDone{Task: taskName(t), State: string(doState)})
		return fmt.Errorf("task failed: %w", err)
	}
	if doState != common.ActionStateSuccessTask {
		t.setState(doState)
		listener(EventTaskDone{Task: taskName(t), State: string(doState)})
		return fmt.Errorf("task ended in unexpected state %s", doState)
	}

	for _, c := range t.PostChecks() {
		if err := c.Run(); err != nil {
			t.setState(common.ActionStateFailedPostCheck)
			listener(EventCheckFailed{Task: taskName(t), Phase: "post", Err: err.Error()})
			return fmt.Errorf("post-check failed: %w", err)
		}
	}

	t.setState(common.ActionStateSuccess)
	listener(EventTaskDone{Task: taskName(t), State: string(common.ActionStateSuccess)})
	return nil
}

// Undo reverses t's Do(), then undoes dependencies in reverse order.
// Terminal success is NOT_STARTED; failure is FAILED_UNDO_TASK or
// FAILED_UNDO_DEPENDENCY.
func Undo(t Task) error {
	if err := t.Undo(); err != nil {
		t.setState(common.ActionStateFailedUndoTask)
		return fmt.Errorf("undo failed: %w", err)
	}
	deps := t.Deps()
	for i := len(deps) - 1; i >= 0; i-- {
		if err := Undo(deps[i]); err != nil {
			t.setState(common.ActionStateFailedUndoDep)
			return fmt.Errorf("dependency undo failed: %w", err)
		}
	}
	t.setState(common.ActionStateNotStarted)
	listener(EventTaskUndone{Task: taskName(t)})
	return nil
}

// --- CreateOutputPackageBases ---------------------------------------

// PackageSource is one incoming package archive, and its optional
// detached signature, for CreateOutputPackageBases.
type PackageSource struct {
	Filename  string
	Data      []byte
	Signature []byte
}

// CreateOutputPackageBases parses a batch of package archives, groups
// them by pkgbase, and constructs one OutputPackageBase per group.
// PkgInfos retains the raw per-package metadata behind Result, for
// post-checks (DebugPackagesCheck, MatchingArchitectureCheck) that need
// pkgtype/arch rather than the flattened OutputPackageBase shape.
type CreateOutputPackageBases struct {
	BaseTask
	Sources  []PackageSource
	Result   []*management.OutputPackageBase
	PkgInfos []files.PkgInfo
}

func NewCreateOutputPackageBases(sources []PackageSource, preChecks []Check) *CreateOutputPackageBases {
	return &CreateOutputPackageBases{
		BaseTask: BaseTask{preChecks: preChecks},
		Sources:  sources,
	}
}

func (t *CreateOutputPackageBases) Do() (common.ActionStateEnum, error) {
	byBase := map[string][]*pkgfile.Package{}
	var order []string

	for _, src := range t.Sources {
		pkg, err := pkgfile.FromReader(src.Filename, bytes.NewReader(src.Data))
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		base := pkg.BuildInfo.PkgBase()
		if _, seen := byBase[base]; !seen {
			order = append(order, base)
		}
		byBase[base] = append(byBase[base], pkg)
	}

	t.Result = t.Result[:0]
	t.PkgInfos = t.PkgInfos[:0]
	for _, base := range order {
		opb, err := management.FromPackages(byBase[base])
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		t.Result = append(t.Result, opb)
		for _, pkg := range byBase[base] {
			t.PkgInfos = append(t.PkgInfos, pkg.PkgInfo)
		}
	}
	return common.ActionStateSuccessTask, nil
}

func (t *CreateOutputPackageBases) Undo() error {
	t.Result = nil
	t.PkgInfos = nil
	return nil
}

// --- WriteOutputPackageBasesToTmpFileInDir ---------------------------

// WriteOutputPackageBasesToTmpFileInDir serializes each OutputPackageBase
// to "{dir}/{base}.json.tmp".
type WriteOutputPackageBasesToTmpFileInDir struct {
	BaseTask
	Dir       string
	Bases     func() []*management.OutputPackageBase
	written   []string
	TmpToDest map[string]string // populated after Do(): src.tmp -> final dst path
}

func NewWriteOutputPackageBasesToTmpFileInDir(dir string, bases func() []*management.OutputPackageBase, deps []Task) *WriteOutputPackageBasesToTmpFileInDir {
	return &WriteOutputPackageBasesToTmpFileInDir{
		BaseTask: BaseTask{dependencies: deps},
		Dir:      dir,
		Bases:    bases,
	}
}

func (t *WriteOutputPackageBasesToTmpFileInDir) Do() (common.ActionStateEnum, error) {
	t.written = nil
	t.TmpToDest = map[string]string{}
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return common.ActionStateFailedTask, fmt.Errorf("creating %s: %w", t.Dir, err)
	}
	for _, base := range t.Bases() {
		data, err := base.MarshalCanonical()
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		dst := filepath.Join(t.Dir, base.Base+".json")
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return common.ActionStateFailedTask, fmt.Errorf("writing %s: %w", tmp, err)
		}
		t.written = append(t.written, tmp)
		t.TmpToDest[tmp] = dst
	}
	return common.ActionStateSuccessTask, nil
}

func (t *WriteOutputPackageBasesToTmpFileInDir) Undo() error {
	for _, p := range t.written {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	t.written = nil
	return nil
}

// --- MoveTmpFiles -----------------------------------------------------

// MoveTmpFiles moves each (Src.tmp, Dst) pair into place: dst, if it
// exists, is first backed up to dst+".bkp"; then src is renamed to dst.
// Undo handles every state MoveTmpFiles' do()/partial-failure can leave
// behind: src present (never moved; if dst was already backed up and is
// now absent, bkp -> dst); src absent + dst present + backup taken
// (dst -> src, bkp -> dst); src absent + dst present + no backup was
// needed (dst -> src).
type MoveTmpFiles struct {
	BaseTask
	Pairs      func() map[string]string // src.tmp -> dst
	backupDone map[string]bool
	moved      []string
}

func NewMoveTmpFiles(pairs func() map[string]string, deps []Task) *MoveTmpFiles {
	return &MoveTmpFiles{BaseTask: BaseTask{dependencies: deps}, Pairs: pairs}
}

func (t *MoveTmpFiles) Do() (common.ActionStateEnum, error) {
	t.backupDone = map[string]bool{}
	t.moved = nil
	pairs := t.Pairs()
	for src, dst := range pairs {
		if _, err := os.Lstat(dst); err == nil {
			bkp := dst + ".bkp"
			if err := os.Rename(dst, bkp); err != nil {
				return common.ActionStateFailedTask, fmt.Errorf("backing up %s: %w", dst, err)
			}
			t.backupDone[dst] = true
		} else if !os.IsNotExist(err) {
			return common.ActionStateFailedTask, err
		}
		if err := os.Rename(src, dst); err != nil {
			return common.ActionStateFailedTask, fmt.Errorf("renaming %s to %s: %w", src, dst, err)
		}
		t.moved = append(t.moved, dst)
	}
	return common.ActionStateSuccessTask, nil
}

func (t *MoveTmpFiles) Undo() error {
	pairs := t.Pairs()
	for src, dst := range pairs {
		if _, err := os.Lstat(src); err == nil {
			// src was never consumed by Do() (or a prior undo already
			// restored it). Do() may still have moved dst to its backup
			// before failing on the rename; put that backup back.
			if t.backupDone[dst] {
				if _, err := os.Lstat(dst); os.IsNotExist(err) {
					if err := os.Rename(dst+".bkp", dst); err != nil {
						return fmt.Errorf("restoring %s from backup: %w", dst, err)
					}
				}
			}
			continue
		}
		if _, err := os.Lstat(dst); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := os.Rename(dst, src); err != nil {
			return fmt.Errorf("restoring %s from %s: %w", src, dst, err)
		}
		if t.backupDone[dst] {
			bkp := dst + ".bkp"
			if err := os.Rename(bkp, dst); err != nil {
				return fmt.Errorf("restoring %s from backup %s: %w", dst, bkp, err)
			}
		}
	}
	t.moved = nil
	t.backupDone = nil
	return nil
}

// BackupPaths returns the dst+".bkp" paths created by the most recent
// Do(), for RemoveBackupFiles to consume.
func (t *MoveTmpFiles) BackupPaths() []string {
	var out []string
	for dst, done := range t.backupDone {
		if done {
			out = append(out, dst+".bkp")
		}
	}
	return out
}

// --- FilesToRepoDir ----------------------------------------------------

// RepoFileInput is one artifact to place into a repository view via
// FilesToRepoDir.
type RepoFileInput struct {
	Name string
	Data []byte
	Kind common.RepoFileEnum
}

// FilesToRepoDir copies each input into PoolDir/{name} and links it from
// RepoDir/{name}.
type FilesToRepoDir struct {
	BaseTask
	PoolDir string
	RepoDir string
	Inputs  func() []RepoFileInput
	created []*repofile.RepoFile
}

func NewFilesToRepoDir(poolDir, repoDir string, inputs func() []RepoFileInput, deps []Task) *FilesToRepoDir {
	return &FilesToRepoDir{BaseTask: BaseTask{dependencies: deps}, PoolDir: poolDir, RepoDir: repoDir, Inputs: inputs}
}

func (t *FilesToRepoDir) Do() (common.ActionStateEnum, error) {
	t.created = nil
	for _, in := range t.Inputs() {
		rf, err := repofile.New(in.Kind, filepath.Join(t.PoolDir, in.Name), filepath.Join(t.RepoDir, in.Name))
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		if err := rf.CopyFrom(bytes.NewReader(in.Data)); err != nil {
			return common.ActionStateFailedTask, err
		}
		if err := rf.Link(); err != nil {
			return common.ActionStateFailedTask, err
		}
		t.created = append(t.created, rf)
	}
	return common.ActionStateSuccessTask, nil
}

func (t *FilesToRepoDir) Undo() error {
	for _, rf := range t.created {
		if err := rf.Unlink(); err != nil {
			return err
		}
		if err := rf.Remove(); err != nil {
			return err
		}
	}
	t.created = nil
	return nil
}

// --- WriteSyncDbsToTmpFilesInDir --------------------------------------

// WriteSyncDbsToTmpFilesInDir renders the .db and .files sync databases
// for the current set of OutputPackageBase values into RepoDir, as
// ".tmp" siblings of their final names.
type WriteSyncDbsToTmpFilesInDir struct {
	BaseTask
	RepoDir      string
	RepoName     string
	Compression  common.CompressionEnum
	DescVersion  management.DescVersion
	Bases        func() []*management.OutputPackageBase
	TmpToDest    map[string]string
	written      []string
}

func NewWriteSyncDbsToTmpFilesInDir(repoDir, repoName string, compression common.CompressionEnum, descVersion management.DescVersion, bases func() []*management.OutputPackageBase, deps []Task) *WriteSyncDbsToTmpFilesInDir {
	return &WriteSyncDbsToTmpFilesInDir{
		BaseTask: BaseTask{dependencies: deps}, RepoDir: repoDir, RepoName: repoName,
		Compression: compression, DescVersion: descVersion, Bases: bases,
	}
}

func (t *WriteSyncDbsToTmpFilesInDir) Do() (common.ActionStateEnum, error) {
	t.written = nil
	t.TmpToDest = map[string]string{}
	bases := t.Bases()
	if err := os.MkdirAll(t.RepoDir, 0o755); err != nil {
		return common.ActionStateFailedTask, fmt.Errorf("creating %s: %w", t.RepoDir, err)
	}

	suffix := syncdb.SuffixForCompression(t.Compression)
	for _, spec := range []struct {
		ext  string
		kind syncdb.Kind
	}{
		{".db" + suffix, syncdb.KindDesc},
		{".files" + suffix, syncdb.KindFiles},
	} {
		dst := filepath.Join(t.RepoDir, t.RepoName+spec.ext)
		tmp := dst + ".tmp"
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return common.ActionStateFailedTask, fmt.Errorf("creating %s: %w", tmp, err)
		}
		err = writeCompressedSyncDb(f, bases, spec.kind, t.DescVersion, t.Compression, dst)
		closeErr := f.Close()
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		if closeErr != nil {
			return common.ActionStateFailedTask, closeErr
		}
		t.written = append(t.written, tmp)
		t.TmpToDest[tmp] = dst
	}
	return common.ActionStateSuccessTask, nil
}

func (t *WriteSyncDbsToTmpFilesInDir) Undo() error {
	for _, p := range t.written {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	t.written = nil
	return nil
}

func writeCompressedSyncDb(w io.Writer, bases []*management.OutputPackageBase, kind syncdb.Kind, descVersion management.DescVersion, compression common.CompressionEnum, path string) error {
	cw, err := archive.Writer(path, compression, w)
	if err != nil {
		return err
	}
	if err := syncdb.Write(cw, bases, kind, descVersion); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// --- ConsolidateOutputPackageBases -------------------------------------

// ConsolidateOutputPackageBases loads the current OutputPackageBase
// values (from a management directory) for the pkgbases a new batch
// touches, so downstream checks (PkgbasesVersionUpdateCheck,
// SourceURLCheck) can compare against them. It also scans the whole
// management directory to build Index and AllVersions, so
// PackagesNewOrUpdatedCheck can detect a pkgname moving to a different
// pkgbase even when that pkgbase isn't otherwise touched by this batch.
type ConsolidateOutputPackageBases struct {
	BaseTask
	ManagementDir string
	NewBases      func() []*management.OutputPackageBase
	Current       map[string]*management.OutputPackageBase
	Index         map[string]string // pkgname -> pkgbase, across the whole management directory
	AllVersions   map[string]string // pkgbase -> version, across the whole management directory
}

func NewConsolidateOutputPackageBases(managementDir string, newBases func() []*management.OutputPackageBase, deps []Task) *ConsolidateOutputPackageBases {
	return &ConsolidateOutputPackageBases{BaseTask: BaseTask{dependencies: deps}, ManagementDir: managementDir, NewBases: newBases}
}

func (t *ConsolidateOutputPackageBases) Do() (common.ActionStateEnum, error) {
	touched := map[string]bool{}
	for _, nb := range t.NewBases() {
		touched[nb.Base] = true
	}

	entries, err := readDirJSON(t.ManagementDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return common.ActionStateFailedTask, err
		}
		entries = nil
	}

	t.Current = map[string]*management.OutputPackageBase{}
	t.Index = map[string]string{}
	t.AllVersions = map[string]string{}
	for _, path := range entries {
		opb, err := management.FromFile(path)
		if err != nil {
			return common.ActionStateFailedTask, err
		}
		t.AllVersions[opb.Base] = opb.Version
		for _, name := range opb.Names() {
			t.Index[name] = opb.Base
		}
		if touched[opb.Base] {
			t.Current[opb.Base] = opb
		}
	}
	return common.ActionStateSuccessTask, nil
}

func (t *ConsolidateOutputPackageBases) Undo() error {
	t.Current = nil
	t.Index = nil
	t.AllVersions = nil
	return nil
}

// --- AddToRepo ----------------------------------------------------------

// AddToRepo is an empty task that aggregates its dependencies under a
// single atomic commit boundary.
type AddToRepo struct {
	BaseTask
}

func NewAddToRepo(deps []Task) *AddToRepo {
	return &AddToRepo{BaseTask: BaseTask{dependencies: deps}}
}

func (t *AddToRepo) Do() (common.ActionStateEnum, error) { return common.ActionStateSuccessTask, nil }
func (t *AddToRepo) Undo() error                          { return nil }

// --- RemoveBackupFiles ---------------------------------------------------

// RemoveBackupFiles deletes the ".bkp" files created during MoveTmpFiles,
// on overall workflow success. There is no undo that would meaningfully
// restore a deleted backup, so Undo is a deliberate no-op.
type RemoveBackupFiles struct {
	BaseTask
	Paths func() []string
}

func NewRemoveBackupFiles(paths func() []string, deps []Task) *RemoveBackupFiles {
	return &RemoveBackupFiles{BaseTask: BaseTask{dependencies: deps}, Paths: paths}
}

func (t *RemoveBackupFiles) Do() (common.ActionStateEnum, error) {
	for _, p := range t.Paths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return common.ActionStateFailedTask, err
		}
	}
	return common.ActionStateSuccessTask, nil
}

func (t *RemoveBackupFiles) Undo() error { return nil }
