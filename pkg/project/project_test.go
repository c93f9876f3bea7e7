package project

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ngld/pkgbuild/pkg/buildlog"
)

func testContext(out *bytes.Buffer) context.Context {
	logger := zerolog.New(out)
	return buildlog.WithLogger(context.Background(), &logger)
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFromPackageJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
		"name": "@acme/data-grid",
		"version": "1.2.3",
		"dependencies": {"react": "^18.0.0"},
		"tsds": {"source": "src/index.ts", "globals": {"react": "React"}}
	}`)

	var out bytes.Buffer
	cfg, err := Load(testContext(&out), root)
	require.NoError(t, err)

	assert.Equal(t, "src/index.ts", cfg.Source)
	assert.Equal(t, "src/index.ts", cfg.Entry)
	assert.Equal(t, filepath.Join(root, "src", "index.ts"), cfg.Input)
	assert.Equal(t, "acmeDataGrid", cfg.Name)
	assert.Equal(t, "1.2.3", cfg.Package.Version)
	assert.Equal(t, map[string]string{"react": "React"}, cfg.Globals)
	assert.Equal(t, []string{TargetCJS, TargetESM}, cfg.Targets)
	assert.Equal(t, filepath.Join(root, "package.json"), cfg.OptionsFile)
	assert.Empty(t, out.String())
}

func TestLoadPrefersRCFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name": "thing", "tsds": {"source": "wrong.ts"}}`)
	writeFile(t, root, ".tsdsrc.json", `{"source": "src/main.tsx", "entry": "src/umd.ts", "targets": ["umd"]}`)

	cfg, err := Load(testContext(&bytes.Buffer{}), root)
	require.NoError(t, err)

	assert.Equal(t, "src/main.tsx", cfg.Source)
	assert.Equal(t, "src/umd.ts", cfg.Entry)
	assert.Equal(t, filepath.Join(root, "src", "umd.ts"), cfg.Input)
	assert.Equal(t, []string{TargetUMD}, cfg.Targets)
	assert.True(t, cfg.HasTarget(TargetUMD))
	assert.False(t, cfg.HasTarget(TargetCJS))
}

func TestLoadYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name": "yaml-pkg", "peerDependencies": {"lodash": "*"}}`)
	writeFile(t, root, ".tsdsrc.yml", "source: src/index.ts\nglobals:\n  lodash: _\ntargets:\n  - esm\n  - umd\n")

	cfg, err := Load(testContext(&bytes.Buffer{}), root)
	require.NoError(t, err)

	assert.Equal(t, "yamlPkg", cfg.Name)
	assert.Equal(t, map[string]string{"lodash": "_"}, cfg.Globals)
	assert.Equal(t, []string{TargetESM, TargetUMD}, cfg.Targets)
	assert.Equal(t, filepath.Join(root, ".tsdsrc.yml"), cfg.OptionsFile)
	assert.Empty(t, cfg.MissingGlobals())
}

func TestLoadMissingSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name": "nothing"}`)

	_, err := Load(testContext(&bytes.Buffer{}), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.Contains(t, err.Error(), `Missing "source" in package.json or .tsdsrc.json`)
}

func TestLoadMissingPackageJSON(t *testing.T) {
	_, err := Load(testContext(&bytes.Buffer{}), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package.json")
}

func TestLoadWarnsAboutMissingGlobals(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
		"name": "widget",
		"dependencies": {"react": "^18", "classnames": "^2"},
		"optionalDependencies": {"fsevents": "^2"},
		"peerDependencies": {"react-dom": "^18"},
		"tsds": {"source": "src/index.ts", "globals": {"react": "React"}}
	}`)

	var out bytes.Buffer
	cfg, err := Load(testContext(&out), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"classnames", "fsevents", "react", "react-dom"}, cfg.Dependencies())
	assert.Equal(t, []string{"classnames", "fsevents", "react-dom"}, cfg.MissingGlobals())

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "warn", gjson.GetBytes(lines[0], "level").String())
	assert.Equal(t, "classnames", gjson.GetBytes(lines[0], "dependency").String())
	assert.Contains(t, string(lines[2]), `\"tsds\": { \"globals\": { \"react-dom\": \"SomeName\" } }`)
}

func TestEnvDropsNodeOptions(t *testing.T) {
	t.Setenv("NODE_OPTIONS", "--inspect")
	t.Setenv("PKGBUILD_TEST_MARKER", "1")

	cfg := &Config{}
	env := cfg.Env()
	assert.Contains(t, env, "PKGBUILD_TEST_MARKER=1")
	for _, item := range env {
		assert.NotContains(t, item, "NODE_OPTIONS=")
	}
}

func TestCamelCase(t *testing.T) {
	cases := map[string]string{
		"@scope/my-pkg":  "scopeMyPkg",
		"react-dom":      "reactDom",
		"lodash":         "lodash",
		"__foo_bar__":    "fooBar",
		"XMLHttpRequest": "xmlHttpRequest",
		"fooBar":         "fooBar",
		"Foo Bar":        "fooBar",
		"":               "",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, CamelCase(input), input)
	}
}
