package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aluedeke/go-sectrust/pkg/sectrust"
	"github.com/docopt/docopt-go"
)

const version = "1.0.0"

const usage = `go-sectrust - macOS Code Signature Verification Tool

A command-line tool for checking binaries and running processes against
code signing requirements using the operating system's trust engine, and
for inspecting embedded code signatures.

Usage:
  go-sectrust check --path=<path> [--requirement=<text>] [--strict] [--nested] [--all-archs] [--no-network] [--revocation] [--expiration]
  go-sectrust check --pid=<pid> [--requirement=<text>] [--no-network] [--revocation] [--expiration]
  go-sectrust check --self [--requirement=<text>] [--no-network] [--revocation] [--expiration]
  go-sectrust info --path=<path> [--recursive]
  go-sectrust -h | --help
  go-sectrust --version

Commands:
  check     Ask the OS trust engine to validate a binary, a process, or this tool itself
  info      Display embedded code signature information (works on any platform)

Options:
  --path=<path>          Path to a Mach-O binary or .app bundle directory
  --pid=<pid>            Process id of a running process to check
  --self                 Check the go-sectrust process itself
  --requirement=<text>   Code requirement expression, e.g. 'anchor apple'
                         (or SECTRUST_REQUIREMENT env var; empty means
                         validate the signature on its own terms)
  --strict               Perform strict bundle validation
  --nested               Recursively check embedded code in bundles
  --all-archs            Validate all architectures of universal binaries
  --no-network           Forbid network access during the check
  --revocation           Enforce certificate revocation checking
  --expiration           Treat expired certificates as invalid
  --recursive            Walk nested bundles like Frameworks/ and PlugIns/
  -h --help              Show this help message
  --version              Show version

Environment Variables:
  SECTRUST_REQUIREMENT   Default requirement expression (overridden by --requirement)

Examples:
  # Verify that a system binary is signed by Apple
  go-sectrust check --path=/bin/ls --requirement='anchor apple'

  # Verify a running process by pid, without network access
  go-sectrust check --pid=501 --requirement='anchor apple generic' --no-network

  # Validate an app bundle strictly, including nested code
  go-sectrust check --path=/Applications/Safari.app --strict --nested

  # Show who signed a binary
  go-sectrust info --path=/bin/ls

  # Show signature info for an app and all nested bundles
  go-sectrust info --path=MyApp.app --recursive
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	if check, _ := opts.Bool("check"); check {
		if err := runCheck(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else if info, _ := opts.Bool("info"); info {
		if err := runInfo(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func checkFlags(opts docopt.Opts) sectrust.Flags {
	flags := sectrust.NoFlags
	if v, _ := opts.Bool("--strict"); v {
		flags |= sectrust.StrictValidate
	}
	if v, _ := opts.Bool("--nested"); v {
		flags |= sectrust.CheckNestedCode
	}
	if v, _ := opts.Bool("--all-archs"); v {
		flags |= sectrust.CheckAllArchitectures
	}
	if v, _ := opts.Bool("--no-network"); v {
		flags |= sectrust.NoNetworkAccess
	}
	if v, _ := opts.Bool("--revocation"); v {
		flags |= sectrust.EnforceRevocationChecks
	}
	if v, _ := opts.Bool("--expiration"); v {
		flags |= sectrust.ConsiderExpiration
	}
	return flags
}

func runCheck(opts docopt.Opts) error {
	reqText, _ := opts.String("--requirement")
	if reqText == "" {
		reqText = os.Getenv("SECTRUST_REQUIREMENT")
	}

	var req *sectrust.Requirement
	if reqText != "" {
		r, err := sectrust.ParseRequirement(reqText)
		if err != nil {
			return fmt.Errorf("invalid requirement %q: %w", reqText, err)
		}
		defer r.Release()
		req = r
	}

	flags := checkFlags(opts)

	if path, _ := opts.String("--path"); path != "" {
		return checkStatic(path, flags, req)
	}
	if pidStr, _ := opts.String("--pid"); pidStr != "" {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			return fmt.Errorf("invalid pid %q", pidStr)
		}
		return checkPid(pid, flags, req)
	}
	return checkSelf(flags, req)
}

func checkStatic(path string, flags sectrust.Flags, req *sectrust.Requirement) error {
	code, err := sectrust.NewStaticCode(path, sectrust.NoFlags)
	if err != nil {
		return fmt.Errorf("cannot open code object for %s: %w", path, err)
	}
	defer code.Release()

	if err := code.CheckValidity(flags, req); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("%s: valid\n", path)
	return nil
}

func checkPid(pid int, flags sectrust.Flags, req *sectrust.Requirement) error {
	attrs := &sectrust.GuestAttributes{}
	attrs.SetPID(pid)

	code, err := sectrust.GuestCode(nil, attrs, sectrust.NoFlags)
	if err != nil {
		return fmt.Errorf("cannot find process %d: %w", pid, err)
	}
	defer code.Release()

	if err := code.CheckValidity(flags, req); err != nil {
		return fmt.Errorf("pid %d: %w", pid, err)
	}

	if path, err := code.Path(sectrust.NoFlags); err == nil {
		fmt.Printf("pid %d (%s): valid\n", pid, path)
	} else {
		fmt.Printf("pid %d: valid\n", pid)
	}
	return nil
}

func checkSelf(flags sectrust.Flags, req *sectrust.Requirement) error {
	code, err := sectrust.SelfCode(sectrust.NoFlags)
	if err != nil {
		return fmt.Errorf("cannot resolve own code object: %w", err)
	}
	defer code.Release()

	if err := code.CheckValidity(flags, req); err != nil {
		return fmt.Errorf("self: %w", err)
	}

	if path, err := code.Path(sectrust.NoFlags); err == nil {
		fmt.Printf("self (%s): valid\n", path)
	} else {
		fmt.Println("self: valid")
	}
	return nil
}

func runInfo(opts docopt.Opts) error {
	path, _ := opts.String("--path")
	recursive, _ := opts.Bool("--recursive")

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	var infos []*sectrust.SignatureInfo
	switch {
	case !fi.IsDir():
		info, err := sectrust.InspectFile(path)
		if err != nil {
			return err
		}
		infos = []*sectrust.SignatureInfo{info}
	case recursive:
		infos, err = sectrust.InspectBundle(path, sectrust.InspectOptions{})
		if err != nil {
			return err
		}
	default:
		infos, err = inspectMainBinaries(path)
		if err != nil {
			return err
		}
	}

	for _, info := range infos {
		printSignatureInfo(info)
	}
	if len(infos) == 0 {
		fmt.Println("no signed binaries found")
	}
	return nil
}

// inspectMainBinaries covers the non-recursive bundle case: only the
// bundle's own executables, not nested frameworks or plugins.
func inspectMainBinaries(bundlePath string) ([]*sectrust.SignatureInfo, error) {
	dirs := []string{
		bundlePath,
		filepath.Join(bundlePath, "Contents", "MacOS"),
	}

	var infos []*sectrust.SignatureInfo
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := sectrust.InspectFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			if rel, err := filepath.Rel(bundlePath, filepath.Join(dir, entry.Name())); err == nil {
				info.RelativePath = rel
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func printSignatureInfo(info *sectrust.SignatureInfo) {
	name := info.Path
	if info.RelativePath != "" {
		name = info.RelativePath
	}
	fmt.Printf("\n=== %s ===\n", name)
	if info.Identifier != "" {
		fmt.Printf("Identifier:  %s\n", info.Identifier)
	}
	if info.TeamID != "" {
		fmt.Printf("Team ID:     %s\n", info.TeamID)
	}
	if info.AdHoc {
		fmt.Printf("Signed:      ad-hoc\n")
	} else if info.SignerCN != "" {
		fmt.Printf("Signed by:   %s\n", info.SignerCN)
	}
	if info.CDHash != nil {
		fmt.Printf("CDHash:      %x\n", info.CDHash)
	}
	fmt.Printf("Hash type:   %d\n", info.HashType)
	fmt.Printf("Page size:   %d\n", info.PageSize)
	fmt.Printf("Code slots:  %d\n", info.CodeSlots)
	if len(info.Entitlements) > 0 {
		fmt.Printf("Entitlements:\n")
		for k, v := range info.Entitlements {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}
}
