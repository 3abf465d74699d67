// Package config loads the process-global transaction environment:
// root directory, database path, target arch/os, and the TransFlag/
// VSFlag/DepFlag/FilterFlag bitmasks a run resolves from readable YAML
// names rather than raw integers.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkgtx/corepm/pkg/types"
	"gopkg.in/yaml.v3"
)

// Environment is the resolved, process-global configuration for one
// engine invocation.
type Environment struct {
	RootDir string `yaml:"rootDir"`
	// CurrDir is the working directory restored after any internal
	// chroot-style path manipulation under RootDir.
	CurrDir string `yaml:"currDir"`
	// DBPath is the directory pkg/store.NewBoltStore opens its database
	// file under, not the database file itself.
	DBPath string `yaml:"dbPath"`

	// Arch and OS name the machine this environment installs for; an
	// added header whose arch/os tags disagree raises BADARCH/BADOS
	// unless the matching filter flag is set.
	Arch string `yaml:"arch"`
	OS   string `yaml:"os"`

	TransFlags  types.TransFlag
	VSFlags     types.VSFlag
	DepFlags    types.DepFlag
	FilterFlags types.FilterFlag
}

// file is the on-disk YAML shape; flag fields are readable name lists
// that Load resolves into the bitmasks Environment carries.
type file struct {
	RootDir string   `yaml:"rootDir"`
	CurrDir string   `yaml:"currDir"`
	DBPath  string   `yaml:"dbPath"`
	Arch    string   `yaml:"arch"`
	OS      string   `yaml:"os"`
	Trans   []string `yaml:"transFlags"`
	VS      []string `yaml:"vsFlags"`
	Dep     []string `yaml:"depFlags"`
	Filter  []string `yaml:"filterFlags"`
}

// machineArch maps Go's architecture names onto the package-arch
// vocabulary installed headers carry.
func machineArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

var transNames = map[string]types.TransFlag{
	"test":       types.TransTest,
	"noscripts":  types.TransNoScripts,
	"notriggers": types.TransNoTriggers,
	"nofdigests": types.TransNoFDigests,
	"nocontexts": types.TransNoContexts,
	"pkgcommit":  types.TransPkgCommit,
	"commit":     types.TransCommit,
	"justdb":     types.TransJustDB,
	"nopost":     types.TransNoPost,
	"nopre":      types.TransNoPre,
	"anaconda":   types.TransAnaconda,
	"repackage":  types.TransRepackage,
	"allfiles":   types.TransAllFiles,
	"chainsaw":   types.TransChainsaw,
}

var vsNames = map[string]types.VSFlag{
	"nosha1header": types.VSNoSHA1Header,
	"nomd5header":  types.VSNoMD5Header,
	"nodsaheader":  types.VSNoDSAHeader,
	"norsaheader":  types.VSNoRSAHeader,
	"nosha1":       types.VSNoSHA1,
	"nomd5":        types.VSNoMD5,
	"nodsa":        types.VSNoDSA,
	"norsa":        types.VSNoRSA,
	"nohdrchk":     types.VSNoHdrChk,
	"needpayload":  types.VSNeedPayload,
}

var depNames = map[string]types.DepFlag{
	"nosuggest":   types.DepNoSuggest,
	"anaconda":    types.DepAnaconda,
	"noconflicts": types.DepNoConflicts,
	"noobsoletes": types.DepNoObsoletes,
	"noprovides":  types.DepNoProvides,
	"norequires":  types.DepNoRequires,
}

var filterNames = map[string]types.FilterFlag{
	"ignoreos":        types.FilterIgnoreOS,
	"ignorearch":      types.FilterIgnoreArch,
	"replacepkg":      types.FilterReplacePkg,
	"forcerelocate":   types.FilterForceRelocate,
	"replacenewfiles": types.FilterReplaceNewFiles,
	"replaceoldfiles": types.FilterReplaceOldFiles,
	"oldpackage":      types.FilterOldPackage,
	"diskspace":       types.FilterDiskSpace,
	"disknodes":       types.FilterDiskNodes,
}

// Load reads and resolves the environment file at path.
func Load(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	env := &Environment{RootDir: f.RootDir, CurrDir: f.CurrDir, DBPath: f.DBPath, Arch: f.Arch, OS: f.OS}
	if env.RootDir == "" {
		env.RootDir = "/"
	}
	if env.DBPath == "" {
		env.DBPath = "/var/lib/pkgtx/db"
	}
	if env.Arch == "" {
		env.Arch = machineArch()
	}
	if env.OS == "" {
		env.OS = runtime.GOOS
	}

	for _, name := range f.Trans {
		flag, ok := transNames[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown transFlags entry %q", name)
		}
		env.TransFlags |= flag
	}
	for _, name := range f.VS {
		flag, ok := vsNames[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown vsFlags entry %q", name)
		}
		env.VSFlags |= flag
	}
	for _, name := range f.Dep {
		flag, ok := depNames[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown depFlags entry %q", name)
		}
		env.DepFlags |= flag
	}
	for _, name := range f.Filter {
		flag, ok := filterNames[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown filterFlags entry %q", name)
		}
		env.FilterFlags |= flag
	}

	return env, nil
}

// Default returns the environment an invocation gets when no file is
// given: root at "/", the running machine's arch/os, no flags set.
func Default() *Environment {
	return &Environment{RootDir: "/", DBPath: "/var/lib/pkgtx/db", Arch: machineArch(), OS: runtime.GOOS}
}
