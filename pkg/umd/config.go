package umd

import (
	"bytes"
	"embed"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"text/template"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/ngld/pkgbuild/pkg/project"
)

//go:embed templates
var templateFS embed.FS

var configTemplate = template.Must(template.New("config.mjs.tmpl").Funcs(template.FuncMap{
	"json": func(value interface{}) (string, error) {
		data, err := json.Marshal(value)
		return string(data), err
	},
}).ParseFS(templateFS, "templates/config.mjs.tmpl"))

// CacheDir is where rendered configs are placed, relative to the project root
const CacheDir = "node_modules/.cache/pkgbuild"

type configParams struct {
	Input    string
	Output   string
	Name     string
	Globals  map[string]string
	External []string
	TSConfig string
	Minify   bool
}

// Configs lists the rollup configs of one UMD build
type Configs struct {
	Files []string
	// Outputs contains the bundles the configs produce, empty for external configs
	Outputs []string
	// dir is removed by Cleanup if the configs were rendered
	dir string
}

// Cleanup removes rendered configs
func (c *Configs) Cleanup() error {
	if c.dir == "" {
		return nil
	}

	err := os.RemoveAll(c.dir)
	if err != nil {
		return eris.Wrapf(err, "failed to remove %s", c.dir)
	}
	return nil
}

// BundleName is the file name (without extension) of the UMD bundles
func BundleName(cfg *project.Config) string {
	name := path.Base(cfg.Package.Name)
	if name == "." || name == "/" || name == "" {
		return "index"
	}
	return name
}

// ExternalConfigs uses config.js and config.min.js from configRoot
func ExternalConfigs(configRoot string) (*Configs, error) {
	configs := &Configs{}
	for _, name := range []string{"config.js", "config.min.js"} {
		file := filepath.Join(configRoot, name)
		_, err := os.Stat(file)
		if err != nil {
			return nil, eris.Wrapf(err, "missing rollup config %s", file)
		}
		configs.Files = append(configs.Files, file)
	}

	return configs, nil
}

// RenderConfigs writes a regular and a minified rollup config for cfg into a fresh directory below
// the project's node_modules cache
func RenderConfigs(cfg *project.Config) (*Configs, error) {
	dir := filepath.Join(cfg.Root, filepath.FromSlash(CacheDir), nanoid.New())
	err := os.MkdirAll(dir, 0o770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dir)
	}

	configs := &Configs{dir: dir}
	tsconfig, err := cfg.TSConfig.Bundler()
	if err != nil {
		configs.Cleanup()
		return nil, err
	}

	tsconfigPath := filepath.Join(dir, "tsconfig.json")
	err = os.WriteFile(tsconfigPath, tsconfig, 0o660)
	if err != nil {
		configs.Cleanup()
		return nil, eris.Wrapf(err, "failed to write %s", tsconfigPath)
	}

	external := cfg.Dependencies()
	bundle := BundleName(cfg)
	for _, minify := range []bool{false, true} {
		name := "config.mjs"
		output := bundle + ".cjs"
		if minify {
			name = "config.min.mjs"
			output = bundle + ".min.cjs"
		}

		outPath := filepath.Join(cfg.Root, "dist", "umd", output)
		params := configParams{
			Input:    cfg.Input,
			Output:   outPath,
			Name:     cfg.Name,
			Globals:  cfg.Globals,
			External: external,
			TSConfig: tsconfigPath,
			Minify:   minify,
		}

		var buf bytes.Buffer
		err = configTemplate.Execute(&buf, params)
		if err != nil {
			configs.Cleanup()
			return nil, eris.Wrapf(err, "failed to render %s", name)
		}

		file := filepath.Join(dir, name)
		err = os.WriteFile(file, buf.Bytes(), 0o660)
		if err != nil {
			configs.Cleanup()
			return nil, eris.Wrapf(err, "failed to write %s", file)
		}

		configs.Files = append(configs.Files, file)
		configs.Outputs = append(configs.Outputs, outPath)
	}

	return configs, nil
}
