package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestLoadTSConfigMissing(t *testing.T) {
	ts, err := LoadTSConfig(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, ts.Path)
	assert.Empty(t, ts.Target)
	assert.JSONEq(t, `{"compilerOptions": {"target": "es5"}}`, string(ts.Raw))
}

func TestLoadTSConfigExtends(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/@tsconfig/strictest/package.json", `{"name": "@tsconfig/strictest"}`)
	writeFile(t, root, "node_modules/@tsconfig/strictest/tsconfig.json", `{
		"compilerOptions": {"strict": true, "target": "es2015", "lib": ["es2015"]}
	}`)
	writeFile(t, root, "tsconfig.base.json", `{
		// shared settings
		"extends": "@tsconfig/strictest",
		"compilerOptions": {
			"jsx": "react-jsx", /* inline */
			"target": "es2020",
		},
		"include": ["lib"],
	}`)
	writeFile(t, root, "tsconfig.json", `{
		"extends": "./tsconfig.base",
		"compilerOptions": {"outDir": "dist", "declaration": true, "jsxImportSource": "https://esm.sh//preact"},
		"include": ["src"]
	}`)

	ts, err := LoadTSConfig(root)
	require.NoError(t, err)

	assert.Equal(t, "es2020", ts.Target)
	assert.Equal(t, "es5", ts.CompilerOption("target").String())
	assert.True(t, ts.CompilerOption("strict").Bool())
	assert.Equal(t, "react-jsx", ts.CompilerOption("jsx").String())
	assert.Equal(t, "https://esm.sh//preact", ts.CompilerOption("jsxImportSource").String())
	assert.Equal(t, []interface{}{filepath.ToSlash(filepath.Join(root, "src"))}, gjson.GetBytes(ts.Raw, "include").Value())
	assert.False(t, gjson.GetBytes(ts.Raw, "extends").Exists())

	bundler, err := ts.Bundler()
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(bundler, "compilerOptions.outDir").Exists())
	assert.False(t, gjson.GetBytes(bundler, "compilerOptions.declaration").Exists())
	assert.Equal(t, "es5", gjson.GetBytes(bundler, "compilerOptions.target").String())
}

func TestLoadTSConfigCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tsconfig.json", `{"extends": "./other.json"}`)
	writeFile(t, root, "other.json", `{"extends": "./tsconfig.json"}`)

	_, err := LoadTSConfig(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadTSConfigSharedParent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "base.json", `{"compilerOptions": {"strict": true}}`)
	writeFile(t, root, "a.json", `{"extends": "./base.json", "compilerOptions": {"jsx": "react"}}`)
	writeFile(t, root, "b.json", `{"extends": "./base.json", "compilerOptions": {"target": "es2019"}}`)
	writeFile(t, root, "tsconfig.json", `{"extends": ["./a.json", "./b.json"]}`)

	ts, err := LoadTSConfig(root)
	require.NoError(t, err)

	assert.True(t, ts.CompilerOption("strict").Bool())
	assert.Equal(t, "react", ts.CompilerOption("jsx").String())
	assert.Equal(t, "es2019", ts.Target)
}

func TestLoadTSConfigRebasesPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config/base.json", `{
		"include": ["../src"],
		"compilerOptions": {"baseUrl": ".", "typeRoots": ["../types"], "paths": {"~/*": ["./lib/*"]}}
	}`)
	writeFile(t, root, "tsconfig.json", `{
		"extends": "./config/base.json",
		"exclude": ["src/**/*.test.ts"],
		"compilerOptions": {"rootDir": "src", "paths": {"@/*": ["src/*"]}}
	}`)

	ts, err := LoadTSConfig(root)
	require.NoError(t, err)

	bundler, err := ts.Bundler()
	require.NoError(t, err)

	abs := func(parts ...string) string {
		return filepath.ToSlash(filepath.Join(append([]string{root}, parts...)...))
	}

	assert.Equal(t, abs("config"), gjson.GetBytes(bundler, "compilerOptions.baseUrl").String())
	assert.Equal(t, abs("src"), gjson.GetBytes(bundler, "compilerOptions.rootDir").String())
	assert.Equal(t, abs("types"), gjson.GetBytes(bundler, "compilerOptions.typeRoots.0").String())
	assert.Equal(t, abs("src"), gjson.GetBytes(bundler, "include.0").String())
	assert.Equal(t, abs("src", "**", "*.test.ts"), gjson.GetBytes(bundler, "exclude.0").String())
	// paths stay relative to the inherited baseUrl
	paths := gjson.GetBytes(bundler, "compilerOptions.paths").Map()
	assert.Equal(t, "src/*", paths["@/*"].Array()[0].String())
	assert.NotContains(t, paths, "~/*")
	assert.Len(t, gjson.GetBytes(bundler, "compilerOptions").Map(), 5)
}

func TestLoadTSConfigRebasesPathsWithoutBaseURL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config/base.json", `{"compilerOptions": {"paths": {"~/*": ["../lib/*"]}}}`)
	writeFile(t, root, "tsconfig.json", `{"extends": "./config/base.json"}`)

	ts, err := LoadTSConfig(root)
	require.NoError(t, err)

	paths := ts.CompilerOption("paths").Map()
	assert.Equal(t, filepath.ToSlash(filepath.Join(root, "lib", "*")), paths["~/*"].Array()[0].String())
	assert.False(t, ts.CompilerOption("baseUrl").Exists())
}
