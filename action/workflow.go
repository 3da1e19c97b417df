package action

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/config"
	"github.com/etnz/repod/management"
)

// AddPackagesInput is everything add_packages needs beyond the loaded
// Settings: the incoming archives, where they're headed, and the knobs
// that select which checks run.
type AddPackagesInput struct {
	Sources       []PackageSource
	RepoName      string
	Architecture  common.ArchitectureEnum
	Debug         bool
	Staging       bool
	Testing       bool
	WithSignature bool
	PkgbaseURLs   map[string]string
	URLValidator  URLValidator
	Verifier      Check // nil, or a PacmanKeySignatureCheck-shaped pre-check built by the caller
	Compression   common.CompressionEnum
	DescVersion   management.DescVersion
}

func (in *AddPackagesInput) flavor() config.Flavor {
	switch {
	case in.Debug:
		return config.FlavorDebug
	case in.Staging:
		return config.FlavorStaging
	case in.Testing:
		return config.FlavorTesting
	default:
		return config.FlavorStable
	}
}

// AddPackagesWorkflow holds the constructed DAG's root plus the
// individual nodes a caller needs read access to after Run (the parsed
// bases, and the backup paths RemoveBackupFiles should clear).
type AddPackagesWorkflow struct {
	Root                *AddToRepo
	Create              *CreateOutputPackageBases
	Consolidate         *ConsolidateOutputPackageBases
	WriteManagementJSON *WriteOutputPackageBasesToTmpFileInDir
	MoveManagementJSON  *MoveTmpFiles
	FilesToRepo         *FilesToRepoDir
	SignaturesToRepo    *FilesToRepoDir // nil unless WithSignature
	WriteSyncDbsTmp     *WriteSyncDbsToTmpFilesInDir
	MoveSyncDbs         *MoveTmpFiles
	RemoveBackups       *RemoveBackupFiles
}

// NewAddPackagesWorkflow builds the add_packages DAG:
//
//	AddToRepo
//	├── MoveTmpFiles (management JSON)
//	│   ├── ConsolidateOutputPackageBases  <-┐
//	│   └── WriteOutputPackageBasesToTmp   <-┤
//	│                                        └── CreateOutputPackageBases (shared)
//	├── FilesToRepoDir (packages)
//	├── [FilesToRepoDir (signatures)]          (only if WithSignature)
//	└── MoveTmpFiles (sync databases)
//	    └── WriteSyncDbsToTmp
func NewAddPackagesWorkflow(settings *config.Settings, in AddPackagesInput) (*AddPackagesWorkflow, error) {
	managementDir, err := settings.GetRepoPath(config.KindManagement, in.RepoName, in.Architecture, in.flavor())
	if err != nil {
		return nil, err
	}
	packageRepoDir, err := settings.GetRepoPath(config.KindPackage, in.RepoName, in.Architecture, in.flavor())
	if err != nil {
		return nil, err
	}
	packagePoolDir, err := settings.PackagePoolPath(in.RepoName, in.Architecture)
	if err != nil {
		return nil, err
	}

	var preChecks []Check
	if in.Verifier != nil {
		preChecks = append(preChecks, in.Verifier)
	}
	create := NewCreateOutputPackageBases(in.Sources, preChecks)
	// DebugPackagesCheck and MatchingArchitectureCheck both need the raw
	// per-package metadata Do() collects into PkgInfos, so they're bound
	// as a deferred post-check rather than built up front.
	create.postChecks = append(create.postChecks, &FuncCheck{Fn: func() error {
		debugCheck := &DebugPackagesCheck{Packages: create.PkgInfos, TargetDebug: in.Debug}
		if err := debugCheck.Run(); err != nil {
			return err
		}
		archCheck := &MatchingArchitectureCheck{Packages: create.PkgInfos, TargetArch: in.Architecture}
		return archCheck.Run()
	}})

	consolidate := NewConsolidateOutputPackageBases(managementDir, func() []*management.OutputPackageBase {
		return create.Result
	}, []Task{create})
	// PkgbasesVersionUpdateCheck, SourceURLCheck, and
	// PackagesNewOrUpdatedCheck all need consolidate's result, which only
	// exists after consolidate.Do() has run, so they're bound as a
	// deferred post-check rather than built up front.
	consolidate.postChecks = append(consolidate.postChecks, &FuncCheck{Fn: func() error {
		currentVersions := map[string]string{}
		currentURLs := map[string]string{}
		for base, opb := range consolidate.Current {
			currentVersions[base] = opb.Version
			if opb.SourceURL != nil {
				currentURLs[base] = *opb.SourceURL
			}
		}
		newVersions := map[string]string{}
		concurrentlyUpdated := map[string]bool{}
		var newPkgs []PkgUpdate
		for _, nb := range create.Result {
			newVersions[nb.Base] = nb.Version
			concurrentlyUpdated[nb.Base] = true
			for _, name := range nb.Names() {
				newPkgs = append(newPkgs, PkgUpdate{Pkgname: name, Pkgbase: nb.Base, Version: nb.Version})
			}
		}
		versionCheck := &PkgbasesVersionUpdateCheck{Current: currentVersions, New: newVersions}
		if err := versionCheck.Run(); err != nil {
			return err
		}
		urlCheck := &SourceURLCheck{Validate: in.URLValidator, NewURLs: in.PkgbaseURLs, CurrentURLs: currentURLs}
		if err := urlCheck.Run(); err != nil {
			return err
		}
		newOrUpdatedCheck := &PackagesNewOrUpdatedCheck{
			Index:               consolidate.Index,
			CurrentVersions:     consolidate.AllVersions,
			ConcurrentlyUpdated: concurrentlyUpdated,
			New:                 newPkgs,
		}
		return newOrUpdatedCheck.Run()
	}})

	writeManagementJSON := NewWriteOutputPackageBasesToTmpFileInDir(managementDir, func() []*management.OutputPackageBase {
		return create.Result
	}, []Task{create})

	moveManagementJSON := NewMoveTmpFiles(func() map[string]string {
		return writeManagementJSON.TmpToDest
	}, []Task{consolidate, writeManagementJSON})

	filesToRepo := NewFilesToRepoDir(packagePoolDir, packageRepoDir, func() []RepoFileInput {
		inputs := make([]RepoFileInput, 0, len(in.Sources))
		for _, src := range in.Sources {
			inputs = append(inputs, RepoFileInput{Name: src.Filename, Data: src.Data, Kind: common.RepoFilePackage})
		}
		return inputs
	}, nil)

	deps := []Task{moveManagementJSON, filesToRepo}

	wf := &AddPackagesWorkflow{
		Create:              create,
		Consolidate:         consolidate,
		WriteManagementJSON: writeManagementJSON,
		MoveManagementJSON:  moveManagementJSON,
		FilesToRepo:         filesToRepo,
	}

	if in.WithSignature {
		signaturesToRepo := NewFilesToRepoDir(packagePoolDir, packageRepoDir, func() []RepoFileInput {
			inputs := make([]RepoFileInput, 0, len(in.Sources))
			for _, src := range in.Sources {
				if src.Signature == nil {
					continue
				}
				inputs = append(inputs, RepoFileInput{
					Name: src.Filename + ".sig", Data: src.Signature, Kind: common.RepoFilePackageSignature,
				})
			}
			return inputs
		}, nil)
		wf.SignaturesToRepo = signaturesToRepo
		deps = append(deps, signaturesToRepo)
	}

	writeSyncDbsTmp := NewWriteSyncDbsToTmpFilesInDir(packageRepoDir, in.RepoName, in.Compression, in.DescVersion, func() []*management.OutputPackageBase {
		return create.Result
	}, []Task{create})

	moveSyncDbs := NewMoveTmpFiles(func() map[string]string {
		return writeSyncDbsTmp.TmpToDest
	}, []Task{writeSyncDbsTmp})

	deps = append(deps, moveSyncDbs)

	wf.WriteSyncDbsTmp = writeSyncDbsTmp
	wf.MoveSyncDbs = moveSyncDbs
	wf.Root = NewAddToRepo(deps)

	wf.RemoveBackups = NewRemoveBackupFiles(func() []string {
		return append(append([]string{}, moveManagementJSON.BackupPaths()...), moveSyncDbs.BackupPaths()...)
	}, nil)

	return wf, nil
}

// Run executes the workflow's root. On failure it calls Undo on the
// root (which undoes dependencies in reverse) and returns the original
// error. On success it runs RemoveBackupFiles to clear the backups
// MoveTmpFiles created.
func (wf *AddPackagesWorkflow) Run() error {
	if err := Run(wf.Root); err != nil {
		if undoErr := Undo(wf.Root); undoErr != nil {
			return fmt.Errorf("add_packages failed (%w), and undo also failed: %v", err, undoErr)
		}
		return err
	}
	return Run(wf.RemoveBackups)
}

// RunAddPackagesDryRun performs only CreateOutputPackageBases and
// returns the resulting OutputPackageBase values serialized as the
// canonical indented JSON add_packages_dryrun prints.
func RunAddPackagesDryRun(sources []PackageSource, verifier Check) ([]byte, error) {
	var preChecks []Check
	if verifier != nil {
		preChecks = append(preChecks, verifier)
	}
	create := NewCreateOutputPackageBases(sources, preChecks)
	if err := Run(create); err != nil {
		return nil, err
	}
	return management.CanonicalJSON(create.Result)
}

// RunWriteSyncDatabases performs just the MoveTmpFiles(WriteSyncDbsToTmp)
// subtree for repository name/arch/flavor, rendering sync databases from
// the management JSON files currently on disk.
func RunWriteSyncDatabases(settings *config.Settings, name string, arch common.ArchitectureEnum, flavor config.Flavor, compression common.CompressionEnum, descVersion management.DescVersion) error {
	managementDir, err := settings.GetRepoPath(config.KindManagement, name, arch, flavor)
	if err != nil {
		return err
	}
	packageRepoDir, err := settings.GetRepoPath(config.KindPackage, name, arch, flavor)
	if err != nil {
		return err
	}

	bases, err := loadManagementDir(managementDir)
	if err != nil {
		return err
	}

	writeTmp := NewWriteSyncDbsToTmpFilesInDir(packageRepoDir, name, compression, descVersion, func() []*management.OutputPackageBase {
		return bases
	}, nil)
	move := NewMoveTmpFiles(func() map[string]string {
		return writeTmp.TmpToDest
	}, []Task{writeTmp})

	if err := Run(move); err != nil {
		_ = Undo(move)
		return err
	}
	return Run(NewRemoveBackupFiles(func() []string { return move.BackupPaths() }, nil))
}

func loadManagementDir(dir string) ([]*management.OutputPackageBase, error) {
	entries, err := readDirJSON(dir)
	if err != nil {
		return nil, err
	}
	bases := make([]*management.OutputPackageBase, 0, len(entries))
	for _, path := range entries {
		base, err := management.FromFile(path)
		if err != nil {
			return nil, err
		}
		bases = append(bases, base)
	}
	return bases, nil
}

func readDirJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
