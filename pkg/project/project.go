package project

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/ngld/pkgbuild/pkg/buildlog"
)

// Build targets
const (
	TargetCJS = "cjs"
	TargetESM = "esm"
	TargetUMD = "umd"
)

// DefaultTargets are built when the options don't list any
var DefaultTargets = []string{TargetCJS, TargetESM}

// ErrMissingSource is returned when the options don't declare a source file
var ErrMissingSource = eris.New(`Missing "source" in package.json or .tsdsrc.json. Add "source": "src/index.ts" (or .tsx) to your config.`)

var dependencyFields = []string{"dependencies", "optionalDependencies", "peerDependencies"}

var optionFiles = []string{".tsdsrc.json", ".tsdsrc.yml", ".tsdsrc.yaml"}

// Package contains the fields of package.json the build cares about
type Package struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
}

// Options are the tsds build options
type Options struct {
	Source  string            `json:"source" yaml:"source"`
	Entry   string            `json:"entry,omitempty" yaml:"entry"`
	Globals map[string]string `json:"globals,omitempty" yaml:"globals"`
	Targets []string          `json:"targets,omitempty" yaml:"targets"`
}

// Config is the resolved build configuration
type Config struct {
	Root    string  `json:"root"`
	Package Package `json:"package"`
	// OptionsFile is the file the options were read from
	OptionsFile string `json:"optionsFile"`
	Source      string `json:"source"`
	// Entry overrides Source for the UMD bundle
	Entry string `json:"entry"`
	// Input is the absolute path of Entry
	Input    string            `json:"input"`
	Name     string            `json:"name"`
	Globals  map[string]string `json:"globals"`
	Targets  []string          `json:"targets"`
	TSConfig *TSConfig         `json:"tsconfig"`
}

// Load reads the configuration of the package in dir
func Load(ctx context.Context, dir string) (*Config, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	pkgPath := filepath.Join(root, "package.json")
	manifest, err := os.ReadFile(pkgPath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", pkgPath)
	}

	if !gjson.ValidBytes(manifest) {
		return nil, eris.Errorf("%s contains invalid JSON", pkgPath)
	}

	pkg := parsePackage(manifest)
	opts, optsFile, err := loadOptions(root, manifest)
	if err != nil {
		return nil, err
	}

	if opts.Source == "" {
		return nil, ErrMissingSource
	}

	entry := opts.Entry
	if entry == "" {
		entry = opts.Source
	}

	globals := opts.Globals
	if globals == nil {
		globals = map[string]string{}
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = append([]string{}, DefaultTargets...)
	}

	tsconfig, err := LoadTSConfig(root)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Root:        root,
		Package:     pkg,
		OptionsFile: optsFile,
		Source:      opts.Source,
		Entry:       entry,
		Input:       filepath.Join(append([]string{root}, strings.Split(entry, "/")...)...),
		Name:        CamelCase(pkg.Name),
		Globals:     globals,
		Targets:     targets,
		TSConfig:    tsconfig,
	}

	for _, name := range cfg.MissingGlobals() {
		buildlog.Log(ctx).Warn().
			Str("dependency", name).
			Msgf(`umd dependency %s is missing. Add a "tsds": { "globals": { "%s": "SomeName" } } to your package.json`, name, name)
	}

	return cfg, nil
}

func parsePackage(manifest []byte) Package {
	toMap := func(field string) map[string]string {
		values := gjson.GetBytes(manifest, field).Map()
		if len(values) == 0 {
			return nil
		}

		result := make(map[string]string, len(values))
		for name, value := range values {
			result[name] = value.String()
		}
		return result
	}

	return Package{
		Name:                 gjson.GetBytes(manifest, "name").String(),
		Version:              gjson.GetBytes(manifest, "version").String(),
		Dependencies:         toMap("dependencies"),
		OptionalDependencies: toMap("optionalDependencies"),
		PeerDependencies:     toMap("peerDependencies"),
	}
}

func loadOptions(root string, manifest []byte) (Options, string, error) {
	var opts Options
	for _, name := range optionFiles {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				continue
			}
			return opts, "", eris.Wrapf(err, "failed to read %s", path)
		}

		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(data, &opts)
		} else {
			err = yaml.Unmarshal(data, &opts)
		}
		if err != nil {
			return opts, "", eris.Wrapf(err, "failed to parse %s", path)
		}

		return opts, path, nil
	}

	section := gjson.GetBytes(manifest, "tsds")
	if section.IsObject() {
		err := json.Unmarshal([]byte(section.Raw), &opts)
		if err != nil {
			return opts, "", eris.Wrap(err, `failed to parse the "tsds" section of package.json`)
		}
	}

	return opts, filepath.Join(root, "package.json"), nil
}

// Dependencies returns the names of all runtime dependencies (regular, optional and peer) in sorted order
func (c *Config) Dependencies() []string {
	seen := map[string]bool{}
	for _, field := range dependencyFields {
		var deps map[string]string
		switch field {
		case "dependencies":
			deps = c.Package.Dependencies
		case "optionalDependencies":
			deps = c.Package.OptionalDependencies
		case "peerDependencies":
			deps = c.Package.PeerDependencies
		}

		for name := range deps {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MissingGlobals lists the dependencies without a UMD global name
func (c *Config) MissingGlobals() []string {
	missing := make([]string, 0)
	for _, name := range c.Dependencies() {
		if _, ok := c.Globals[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// HasTarget reports whether target is enabled
func (c *Config) HasTarget(target string) bool {
	for _, item := range c.Targets {
		if item == target {
			return true
		}
	}
	return false
}

// Env returns the environment for bundler processes. NODE_OPTIONS is removed so options
// meant for a parent process (i.e. a test runner) don't leak into the bundler.
func (c *Config) Env() []string {
	env := os.Environ()
	result := make([]string, 0, len(env))
	for _, item := range env {
		if strings.HasPrefix(item, "NODE_OPTIONS=") {
			continue
		}
		result = append(result, item)
	}
	return result
}
