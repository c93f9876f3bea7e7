package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"

	"github.com/ngld/pkgbuild/pkg/resolve"
)

// ForcedTarget is the compilerOptions.target used for UMD bundles
const ForcedTarget = "es5"

var (
	rootPathLists = []string{"include", "exclude", "files"}
	optionPaths   = []string{"baseUrl", "rootDir", "outDir", "declarationDir", "tsBuildInfoFile"}
	optionLists   = []string{"rootDirs", "typeRoots"}
)

const pathsDirKey = "\x00pathsDir"

// TSConfig is a tsconfig.json with its extends chain applied
type TSConfig struct {
	// Path is empty if the package has no tsconfig.json
	Path string `json:"path"`
	// Target is compilerOptions.target before the es5 override
	Target string `json:"target"`
	// Raw is the resolved JSON document
	Raw json.RawMessage `json:"resolved"`
}

// CompilerOption returns the value of a single compiler option
func (t *TSConfig) CompilerOption(name string) gjson.Result {
	return gjson.GetBytes(t.Raw, "compilerOptions."+gjson.Escape(name))
}

// Bundler returns the document with the adjustments the UMD bundler needs: declarations and outDir
// are stripped because rollup writes the output itself.
func (t *TSConfig) Bundler() ([]byte, error) {
	raw := []byte(t.Raw)
	var err error
	for _, key := range []string{"outDir", "declarationDir", "declaration", "declarationMap", "emitDeclarationOnly", "composite", "noEmit"} {
		raw, err = sjson.DeleteBytes(raw, "compilerOptions."+key)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to remove compilerOptions.%s", key)
		}
	}

	return raw, nil
}

// LoadTSConfig reads root/tsconfig.json and resolves its extends chain
func LoadTSConfig(root string) (*TSConfig, error) {
	result := &TSConfig{}
	doc := map[string]interface{}{}

	path := filepath.Join(root, "tsconfig.json")
	_, err := os.Stat(path)
	if err == nil {
		doc, err = readTSConfig(path, map[string]bool{})
		if err != nil {
			return nil, err
		}
		rebaseMappings(doc)
		result.Path = path
	} else if !eris.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(err, "failed to check %s", path)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode tsconfig")
	}

	result.Target = gjson.GetBytes(raw, "compilerOptions.target").String()
	raw, err = sjson.SetBytes(raw, "compilerOptions.target", ForcedTarget)
	if err != nil {
		return nil, eris.Wrap(err, "failed to override compilerOptions.target")
	}

	result.Raw = raw
	return result, nil
}

func readTSConfig(path string, visited map[string]bool) (map[string]interface{}, error) {
	if visited[path] {
		return nil, eris.Errorf("tsconfig extends cycle through %s", path)
	}
	visited[path] = true
	defer delete(visited, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	doc := map[string]interface{}{}
	err = json.Unmarshal(jsonc.ToJSON(data), &doc)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}
	rebasePaths(doc, filepath.Dir(path))

	var parents []string
	switch ext := doc["extends"].(type) {
	case nil:
	case string:
		parents = []string{ext}
	case []interface{}:
		for _, item := range ext {
			name, ok := item.(string)
			if !ok {
				return nil, eris.Errorf("%s: extends must only contain strings", path)
			}
			parents = append(parents, name)
		}
	default:
		return nil, eris.Errorf("%s: extends must be a string or a list of strings", path)
	}
	delete(doc, "extends")

	if len(parents) == 0 {
		return doc, nil
	}

	merged := map[string]interface{}{}
	for _, parent := range parents {
		parentPath, err := resolveExtends(parent, filepath.Dir(path))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve %s from %s", parent, path)
		}

		parentDoc, err := readTSConfig(parentPath, visited)
		if err != nil {
			return nil, err
		}
		mergeTSConfig(merged, parentDoc)
	}

	mergeTSConfig(merged, doc)
	return merged, nil
}

// mergeTSConfig applies child on top of base. compilerOptions are merged key by key; every other
// top-level key is replaced.
func mergeTSConfig(base, child map[string]interface{}) {
	for key, value := range child {
		if key == "compilerOptions" {
			opts, ok := base[key].(map[string]interface{})
			childOpts, childOk := value.(map[string]interface{})
			if ok && childOk {
				for name, option := range childOpts {
					opts[name] = option
				}
				continue
			}

			if childOk {
				copied := make(map[string]interface{}, len(childOpts))
				for name, option := range childOpts {
					copied[name] = option
				}
				base[key] = copied
				continue
			}
		}

		base[key] = value
	}
}

func resolveExtends(name, dir string) (string, error) {
	if strings.HasPrefix(name, ".") || filepath.IsAbs(name) {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, filepath.FromSlash(name))
		}
		return existingConfig(path)
	}

	parts := strings.Split(name, "/")
	pkgParts := 1
	if strings.HasPrefix(name, "@") {
		pkgParts = 2
	}
	if len(parts) < pkgParts {
		return "", eris.Errorf("invalid package reference %s", name)
	}

	pkgDir, err := resolve.Package(strings.Join(parts[:pkgParts], "/"), dir)
	if err != nil {
		return "", err
	}

	sub := parts[pkgParts:]
	if len(sub) == 0 {
		manifest, err := resolve.Manifest(pkgDir)
		if err != nil {
			return "", err
		}

		field := gjson.GetBytes(manifest, "tsconfig").String()
		if field == "" {
			field = "tsconfig.json"
		}
		return existingConfig(filepath.Join(pkgDir, filepath.FromSlash(field)))
	}

	return existingConfig(filepath.Join(append([]string{pkgDir}, sub...)...))
}

func existingConfig(path string) (string, error) {
	candidates := []string{path}
	if !strings.HasSuffix(path, ".json") {
		candidates = append(candidates, path+".json")
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", eris.Errorf("tsconfig %s does not exist", path)
}

// rebasePaths turns the relative paths of a single tsconfig file into absolute ones so the merged
// document can be written anywhere. paths entries stay relative to baseUrl; the declaring directory is
// remembered for rebaseMappings.
func rebasePaths(doc map[string]interface{}, dir string) {
	for _, key := range rootPathLists {
		if value, ok := doc[key]; ok {
			doc[key] = rebaseList(value, dir)
		}
	}

	opts, ok := doc["compilerOptions"].(map[string]interface{})
	if !ok {
		return
	}

	for _, key := range optionPaths {
		if value, ok := opts[key].(string); ok {
			opts[key] = rebase(value, dir)
		}
	}

	for _, key := range optionLists {
		if value, ok := opts[key]; ok {
			opts[key] = rebaseList(value, dir)
		}
	}

	if _, ok := opts["paths"]; ok {
		opts[pathsDirKey] = dir
	}
}

// rebaseMappings resolves paths against the file that declared them once the merged document turns
// out to have no baseUrl
func rebaseMappings(doc map[string]interface{}) {
	opts, ok := doc["compilerOptions"].(map[string]interface{})
	if !ok {
		return
	}

	dir, _ := opts[pathsDirKey].(string)
	delete(opts, pathsDirKey)
	if _, ok := opts["baseUrl"]; ok || dir == "" {
		return
	}

	if paths, ok := opts["paths"].(map[string]interface{}); ok {
		for pattern, targets := range paths {
			paths[pattern] = rebaseList(targets, dir)
		}
	}
}

func rebaseList(value interface{}, dir string) interface{} {
	items, ok := value.([]interface{})
	if !ok {
		return value
	}

	result := make([]interface{}, len(items))
	for idx, item := range items {
		if str, ok := item.(string); ok {
			result[idx] = rebase(str, dir)
		} else {
			result[idx] = item
		}
	}
	return result
}

func rebase(value, dir string) string {
	// ${configDir} is expanded by tsc itself
	if value == "" || strings.HasPrefix(value, "${") || strings.HasPrefix(value, "/") || filepath.IsAbs(value) {
		return value
	}

	return filepath.ToSlash(filepath.Join(dir, filepath.FromSlash(value)))
}
