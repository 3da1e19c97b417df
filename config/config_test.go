package config

import (
	"testing"

	"github.com/etnz/repod/common"
)

func testSettings() *Settings {
	return &Settings{
		Architecture:    common.ArchitectureX86_64,
		ManagementRepo:  "/srv/management",
		PackagePool:     "/srv/pool/packages",
		SourcePool:      "/srv/pool/sources",
		PackageRepoBase: "/srv/repo/packages",
		SourceRepoBase:  "/srv/repo/sources",
		Repositories: []PackageRepo{
			{Name: "core", Testing: "core-testing", Debug: "core-debug"},
		},
	}
}

func TestGetRepoPathStable(t *testing.T) {
	s := testSettings()
	p, err := s.GetRepoPath(KindPackage, "core", common.ArchitectureX86_64, FlavorStable)
	if err != nil {
		t.Fatalf("GetRepoPath: %v", err)
	}
	if p != "/srv/repo/packages/core/x86_64" {
		t.Fatalf("got %q", p)
	}
}

func TestGetRepoPathTesting(t *testing.T) {
	s := testSettings()
	p, err := s.GetRepoPath(KindManagement, "core", common.ArchitectureX86_64, FlavorTesting)
	if err != nil {
		t.Fatalf("GetRepoPath: %v", err)
	}
	if p != "/srv/management/x86_64/core-testing" {
		t.Fatalf("got %q", p)
	}
}

func TestGetRepoPathUnconfiguredFlavor(t *testing.T) {
	s := testSettings()
	if _, err := s.GetRepoPath(KindPackage, "core", common.ArchitectureX86_64, FlavorStaging); err == nil {
		t.Fatal("expected error for unconfigured staging flavor")
	}
}

func TestValidateRejectsOverlappingPaths(t *testing.T) {
	s := testSettings()
	s.SourceRepoBase = s.PackageRepoBase
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for overlapping package/source repo base")
	}
}

func TestValidateRejectsDuplicateNameArch(t *testing.T) {
	s := testSettings()
	s.Repositories = append(s.Repositories, PackageRepo{Name: "core"})
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for duplicate (name, architecture) pair")
	}
}

func TestValidateRejectsNonDistinctFlavorComponents(t *testing.T) {
	s := testSettings()
	s.Repositories[0].Testing = "core"
	if err := s.Validate(); err == nil {
		t.Fatal("expected error when testing flavor equals repository name")
	}
}
