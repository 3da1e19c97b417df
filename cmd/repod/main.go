// Command repod is the pacman-style repository manager's CLI front end:
// it loads a Settings tree and dispatches to the add_packages,
// add_packages_dryrun, and write_sync_databases workflows.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/repod/action"
	"github.com/etnz/repod/common"
	"github.com/etnz/repod/config"
	"github.com/etnz/repod/management"
	"github.com/etnz/repod/verification"
)

// arrayFlags collects a repeated flag's values in the order given.
type arrayFlags []string

// String implements the flag.Value interface.
func (i *arrayFlags) String() string { return strings.Join(*i, ", ") }

// Set implements the flag.Value interface.
func (i *arrayFlags) Set(value string) error {
	*i = append(*i, value)
	return nil
}

// kvFlags collects repeated KEY=VALUE flags into a map.
type kvFlags map[string]string

// String implements the flag.Value interface.
func (i *kvFlags) String() string {
	s := []string{}
	for k, v := range *i {
		s = append(s, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(s, ", ")
}

// Set implements the flag.Value interface.
func (i *kvFlags) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format %q, expected KEY=VALUE", value)
	}
	if *i == nil {
		*i = kvFlags{}
	}
	(*i)[parts[0]] = parts[1]
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add-packages":
		runAddPackages(os.Args[2:])
	case "add-packages-dryrun":
		runAddPackagesDryRun(os.Args[2:])
	case "write-sync-databases":
		runWriteSyncDatabases(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: repod <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  add-packages          Parse, verify, and publish one or more packages")
	fmt.Println("  add-packages-dryrun   Parse packages and print their management JSON without publishing")
	fmt.Println("  write-sync-databases  Regenerate a repository's .db/.files from its management JSON")
}

// commonRepoFlags are the (config, repo, arch) flags every subcommand needs
// to resolve a Settings tree and a repository within it.
type commonRepoFlags struct {
	configPath string
	repoName   string
	arch       string
}

func (c *commonRepoFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "repod.yaml", "Path to the repository configuration file")
	fs.StringVar(&c.repoName, "repo", "", "Repository name")
	fs.StringVar(&c.arch, "arch", "", "Target architecture")
}

func (c *commonRepoFlags) architecture() common.ArchitectureEnum {
	return common.ArchitectureEnum(c.arch)
}

func runAddPackages(args []string) {
	fs := flag.NewFlagSet("add-packages", flag.ExitOnError)
	var repo commonRepoFlags
	repo.register(fs)

	var packages arrayFlags
	fs.Var(&packages, "package", "Package archive to add (repeatable)")
	var withSig bool
	fs.BoolVar(&withSig, "with-signature", false, "Also publish each package's .sig, read alongside it")
	var keyring string
	fs.StringVar(&keyring, "keyring", "", "ASCII-armored public keyring used to verify package signatures")
	var debug, staging, testing bool
	fs.BoolVar(&debug, "debug", false, "Publish to the debug flavor")
	fs.BoolVar(&staging, "staging", false, "Publish to the staging flavor")
	fs.BoolVar(&testing, "testing", false, "Publish to the testing flavor")
	var compression string
	fs.StringVar(&compression, "compression", "none", "Sync database compression: none, gzip, zstandard")
	var descVersion string
	fs.StringVar(&descVersion, "desc-version", "auto", "Sync database desc schema: auto, v1, v2")
	urls := make(kvFlags)
	fs.Var(&urls, "source-url", "Pkgbase source URL override (pkgbase=url, repeatable)")
	fs.Parse(args)

	if repo.repoName == "" || repo.arch == "" {
		log.Fatal("--repo and --arch are required")
	}

	settings, err := config.Load(repo.configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	sources, err := loadPackageSources(packages, withSig)
	if err != nil {
		log.Fatalf("reading packages: %v", err)
	}

	var verifier action.Check
	if keyring != "" {
		kv, err := verification.NewKeyringVerifier(keyring)
		if err != nil {
			log.Fatalf("loading keyring: %v", err)
		}
		pairs := make([]action.SignaturePair, 0, len(sources))
		for _, src := range sources {
			pairs = append(pairs, action.SignaturePair{PackageData: src.Data, SignatureData: src.Signature})
		}
		verifier = &action.PacmanKeySignatureCheck{Pairs: pairs, Verifier: kv}
	}

	wf, err := action.NewAddPackagesWorkflow(settings, action.AddPackagesInput{
		Sources:       sources,
		RepoName:      repo.repoName,
		Architecture:  repo.architecture(),
		Debug:         debug,
		Staging:       staging,
		Testing:       testing,
		WithSignature: withSig,
		PkgbaseURLs:   urls,
		Verifier:      verifier,
		Compression:   parseCompression(compression),
		DescVersion:   parseDescVersion(descVersion),
	})
	if err != nil {
		log.Fatalf("building add-packages workflow: %v", err)
	}

	if err := wf.Run(); err != nil {
		log.Fatalf("add-packages failed: %v", err)
	}
	fmt.Printf("published %d package bases to %s/%s\n", len(wf.Create.Result), repo.repoName, repo.arch)
}

func runAddPackagesDryRun(args []string) {
	fs := flag.NewFlagSet("add-packages-dryrun", flag.ExitOnError)
	var packages arrayFlags
	fs.Var(&packages, "package", "Package archive to parse (repeatable)")
	var withSig bool
	fs.BoolVar(&withSig, "with-signature", false, "Also read each package's .sig alongside it")
	fs.Parse(args)

	sources, err := loadPackageSources(packages, withSig)
	if err != nil {
		log.Fatalf("reading packages: %v", err)
	}

	out, err := action.RunAddPackagesDryRun(sources, nil)
	if err != nil {
		log.Fatalf("add-packages-dryrun failed: %v", err)
	}
	os.Stdout.Write(out)
	fmt.Println()
}

func runWriteSyncDatabases(args []string) {
	fs := flag.NewFlagSet("write-sync-databases", flag.ExitOnError)
	var repo commonRepoFlags
	repo.register(fs)
	var flavor string
	fs.StringVar(&flavor, "flavor", "stable", "Repository flavor: stable, debug, staging, testing")
	var compression string
	fs.StringVar(&compression, "compression", "none", "Sync database compression: none, gzip, zstandard")
	var descVersion string
	fs.StringVar(&descVersion, "desc-version", "auto", "Sync database desc schema: auto, v1, v2")
	fs.Parse(args)

	if repo.repoName == "" || repo.arch == "" {
		log.Fatal("--repo and --arch are required")
	}

	settings, err := config.Load(repo.configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	if err := action.RunWriteSyncDatabases(settings, repo.repoName, repo.architecture(), parseFlavor(flavor), parseCompression(compression), parseDescVersion(descVersion)); err != nil {
		log.Fatalf("write-sync-databases failed: %v", err)
	}
	fmt.Printf("regenerated sync databases for %s/%s/%s\n", repo.repoName, repo.arch, flavor)
}

// loadPackageSources reads each named archive (and, if withSig, its
// adjacent .sig file) into an action.PackageSource.
func loadPackageSources(paths []string, withSig bool) ([]action.PackageSource, error) {
	sources := make([]action.PackageSource, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		src := action.PackageSource{Filename: filepath.Base(p), Data: data}
		if withSig {
			sig, err := os.ReadFile(p + ".sig")
			if err != nil {
				return nil, err
			}
			src.Signature = sig
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func parseCompression(s string) common.CompressionEnum {
	switch strings.ToLower(s) {
	case "gzip":
		return common.CompressionGzip
	case "zstandard", "zstd":
		return common.CompressionZstandard
	case "bzip2":
		return common.CompressionBzip2
	case "lzma":
		return common.CompressionLzma
	default:
		return common.CompressionNone
	}
}

func parseDescVersion(s string) management.DescVersion {
	switch strings.ToLower(s) {
	case "v1":
		return management.DescV1
	case "v2":
		return management.DescV2
	default:
		return management.DescAuto
	}
}

func parseFlavor(s string) config.Flavor {
	switch strings.ToLower(s) {
	case "debug":
		return config.FlavorDebug
	case "staging":
		return config.FlavorStaging
	case "testing":
		return config.FlavorTesting
	default:
		return config.FlavorStable
	}
}
