// Package transpile emits the cjs and esm builds of a package with esbuild.
package transpile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/tidwall/sjson"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/project"
)

// DefaultTarget is used if tsconfig.json doesn't set compilerOptions.target
const DefaultTarget = "es2017"

var sourceExts = map[string]bool{
	".ts":  true,
	".tsx": true,
	".mts": true,
	".cts": true,
	".js":  true,
	".jsx": true,
}

var targets = map[string]api.Target{
	"es3":    api.ES5,
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Target maps a compilerOptions.target value to esbuild's target. Unknown newer targets map to ESNext.
func Target(name string) api.Target {
	name = strings.ToLower(name)
	if name == "" {
		name = DefaultTarget
	}

	target, ok := targets[name]
	if !ok {
		return api.ESNext
	}
	return target
}

// SourceFiles lists the files below dir that are transpiled. Declarations and tests are skipped.
func SourceFiles(dir string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == "node_modules" || (strings.HasPrefix(d.Name(), ".") && path != dir) {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !sourceExts[filepath.Ext(name)] || isDeclaration(name) || isTest(name) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list sources in %s", dir)
	}

	sort.Strings(files)
	return files, nil
}

func isDeclaration(name string) bool {
	for _, suffix := range []string{".d.ts", ".d.mts", ".d.cts"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func isTest(name string) bool {
	return strings.Contains(name, ".test.") || strings.Contains(name, ".spec.")
}

// Build transpiles the sources of cfg into dist/<format>. format is project.TargetCJS or project.TargetESM.
func Build(ctx context.Context, cfg *project.Config, format string) error {
	var esFormat api.Format
	var pkgType string
	switch format {
	case project.TargetCJS:
		esFormat = api.FormatCommonJS
		pkgType = "commonjs"
	case project.TargetESM:
		esFormat = api.FormatESModule
		pkgType = "module"
	default:
		return eris.Errorf("unsupported format %s", format)
	}

	srcDir := filepath.Dir(filepath.Join(cfg.Root, filepath.FromSlash(cfg.Source)))
	outDir := filepath.Join(cfg.Root, "dist", format)

	files, err := SourceFiles(srcDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return eris.Errorf("no sources found in %s", srcDir)
	}

	target := ""
	if cfg.TSConfig != nil {
		target = cfg.TSConfig.Target
	}

	buildlog.Log(ctx).Info().
		Str("format", format).
		Int("files", len(files)).
		Msgf("Transpiling %d files to %s", len(files), outDir)

	opts := api.BuildOptions{
		EntryPoints: files,
		Outdir:      outDir,
		Outbase:     srcDir,
		Format:      esFormat,
		Platform:    api.PlatformNeutral,
		Target:      Target(target),
		Sourcemap:   api.SourceMapLinked,
		Write:       true,
		LogLevel:    api.LogLevelSilent,
	}
	if cfg.TSConfig != nil && cfg.TSConfig.Path != "" {
		opts.Tsconfig = cfg.TSConfig.Path
	}

	result := api.Build(opts)
	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		buildlog.Log(ctx).Warn().Msg(strings.TrimSpace(msg))
	}

	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return eris.Errorf("esbuild failed with %d error(s):\n%s", len(result.Errors), strings.Join(msgs, "\n"))
	}

	manifest, err := sjson.Set("{}", "type", pkgType)
	if err != nil {
		return eris.Wrap(err, "failed to build the package.json")
	}

	manifestPath := filepath.Join(outDir, "package.json")
	err = os.WriteFile(manifestPath, []byte(manifest+"\n"), 0o644)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", manifestPath)
	}

	return nil
}
