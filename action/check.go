// Package action implements the Check/Task/workflow engine: pure
// precondition/postcondition predicates, idempotent undoable units of
// work, and the DAGs that compose them into add_packages,
// add_packages_dryrun, and write_sync_databases. It mirrors the shape of
// a load/apply-each-unit/save pipeline reporting through a Listener,
// generalized into an explicit dependency graph with its own
// run()/undo() protocol.
package action

import (
	"fmt"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/files"
	"github.com/etnz/repod/verification"
	"github.com/etnz/repod/version"
)

// Check is a pure, callable predicate over already-collected inputs. It
// must not mutate them. Run transitions State from NOT_STARTED through
// STARTED to SUCCESS or FAILED.
type Check interface {
	Run() error
	State() common.ActionStateEnum
}

type baseCheck struct {
	state common.ActionStateEnum
}

func (b *baseCheck) State() common.ActionStateEnum { return b.state }

func (b *baseCheck) finish(err error) error {
	if err != nil {
		b.state = common.ActionStateFailed
		return err
	}
	b.state = common.ActionStateSuccess
	return nil
}

// SignaturePair is one (package archive bytes, detached signature bytes)
// input to PacmanKeySignatureCheck.
type SignaturePair struct {
	PackageData   []byte
	SignatureData []byte
}

// PacmanKeySignatureCheck succeeds only if every input pair verifies
// against Verifier.
type PacmanKeySignatureCheck struct {
	baseCheck
	Pairs    []SignaturePair
	Verifier verification.Verifier
}

func (c *PacmanKeySignatureCheck) Run() error {
	c.state = common.ActionStateStarted
	for i, pair := range c.Pairs {
		if pair.PackageData == nil || pair.SignatureData == nil {
			return c.finish(fmt.Errorf("pair %d is not a complete (package, signature) pair", i))
		}
		if err := c.Verifier.Verify(pair.PackageData, pair.SignatureData); err != nil {
			return c.finish(fmt.Errorf("pair %d: %w", i, err))
		}
	}
	return c.finish(nil)
}

// DebugPackagesCheck succeeds when every PkgInfoV2 input's debug tag
// matches TargetDebug. PkgInfoV1 inputs carry no pkgtype and are silently
// accepted regardless of TargetDebug.
type DebugPackagesCheck struct {
	baseCheck
	Packages    []files.PkgInfo
	TargetDebug bool
}

func (c *DebugPackagesCheck) Run() error {
	c.state = common.ActionStateStarted
	for _, pi := range c.Packages {
		v2, ok := pi.(*files.PkgInfoV2)
		if !ok {
			continue
		}
		isDebug := v2.PkgType == common.PkgTypeDebug
		if isDebug != c.TargetDebug {
			return c.finish(fmt.Errorf("package %q has debug=%v, target repo expects debug=%v", pi.Name(), isDebug, c.TargetDebug))
		}
	}
	return c.finish(nil)
}

// MatchingArchitectureCheck succeeds when every package's architecture
// equals TargetArch or is the "any" wildcard.
type MatchingArchitectureCheck struct {
	baseCheck
	Packages   []files.PkgInfo
	TargetArch common.ArchitectureEnum
}

func (c *MatchingArchitectureCheck) Run() error {
	c.state = common.ActionStateStarted
	for _, pi := range c.Packages {
		arch := common.ArchitectureEnum(pi.Arch())
		if arch != c.TargetArch && arch != common.ArchitectureAny {
			return c.finish(fmt.Errorf("package %q has architecture %q, target is %q", pi.Name(), arch, c.TargetArch))
		}
	}
	return c.finish(nil)
}

// PkgbasesVersionUpdateCheck succeeds when, for every new pkgbase that is
// also present in Current, the new version strictly exceeds the current
// one.
type PkgbasesVersionUpdateCheck struct {
	baseCheck
	Current map[string]string
	New     map[string]string
}

func (c *PkgbasesVersionUpdateCheck) Run() error {
	c.state = common.ActionStateStarted
	for base, newVersion := range c.New {
		curVersion, ok := c.Current[base]
		if !ok {
			continue
		}
		if version.PkgVercmp(curVersion, newVersion) >= 0 {
			return c.finish(fmt.Errorf("pkgbase %q: new version %q does not exceed current version %q", base, newVersion, curVersion))
		}
	}
	return c.finish(nil)
}

// PkgUpdate describes one incoming package's identity for
// PackagesNewOrUpdatedCheck.
type PkgUpdate struct {
	Pkgname string
	Pkgbase string
	Version string
}

// PackagesNewOrUpdatedCheck succeeds when every incoming package that
// already exists under a *different* pkgbase in Index is either being
// vacated by that other pkgbase in this same update (ConcurrentlyUpdated)
// or is strictly newer than the version the index currently records.
// Index is the pkgname -> pkgbase map used in place of a filesystem
// symlink-resolution side-channel.
type PackagesNewOrUpdatedCheck struct {
	baseCheck
	Index               map[string]string
	CurrentVersions     map[string]string // pkgbase -> version, for the pkgbase currently owning a pkgname
	ConcurrentlyUpdated map[string]bool   // pkgbase -> true if this update changes what it provides
	New                 []PkgUpdate
}

func (c *PackagesNewOrUpdatedCheck) Run() error {
	c.state = common.ActionStateStarted
	for _, u := range c.New {
		owningBase, exists := c.Index[u.Pkgname]
		if !exists || owningBase == u.Pkgbase {
			continue
		}
		if c.ConcurrentlyUpdated[owningBase] {
			continue
		}
		curVersion := c.CurrentVersions[owningBase]
		if version.PkgVercmp(curVersion, u.Version) >= 0 {
			return c.finish(fmt.Errorf("package %q already provided by pkgbase %q at version %q, which is not being updated",
				u.Pkgname, owningBase, curVersion))
		}
	}
	return c.finish(nil)
}

// FuncCheck adapts an arbitrary closure to the Check interface, for
// checks whose inputs (like ConsolidateOutputPackageBases' result) only
// exist once an earlier task in the DAG has actually run — they can't be
// built as a fully-populated Check value ahead of time.
type FuncCheck struct {
	baseCheck
	Fn func() error
}

func (c *FuncCheck) Run() error {
	c.state = common.ActionStateStarted
	return c.finish(c.Fn())
}

// URLValidator reports whether a source URL is acceptable, e.g. a host
// allowlist check.
type URLValidator func(url string) bool

// SourceURLCheck succeeds when, for every pkgbase, the new source URL (or
// the current one, if the new pkgbase does not specify one) passes
// Validate. A nil Validate accepts every pkgbase unconditionally (no URL
// validation configured).
type SourceURLCheck struct {
	baseCheck
	Validate    URLValidator
	NewURLs     map[string]string // pkgbase -> url, may be absent
	CurrentURLs map[string]string // pkgbase -> url, fallback
}

func (c *SourceURLCheck) Run() error {
	c.state = common.ActionStateStarted
	if c.Validate == nil {
		return c.finish(nil)
	}
	for base, url := range c.NewURLs {
		if url == "" {
			url = c.CurrentURLs[base]
		}
		if url == "" || !c.Validate(url) {
			return c.finish(fmt.Errorf("pkgbase %q has no valid source URL", base))
		}
	}
	return c.finish(nil)
}
