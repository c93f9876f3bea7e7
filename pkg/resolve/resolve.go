// Package resolve locates npm packages and their executables the way node's module resolution does.
package resolve

import (
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// NotFoundError is returned when a package or binary can't be located
type NotFoundError struct {
	Name string
	From string
	Bin  bool
}

var _ error = (*NotFoundError)(nil)

func (e *NotFoundError) Error() string {
	if e.Bin {
		return fmt.Sprintf("could not find the binary %s from %s. Is the package installed?", e.Name, e.From)
	}
	return fmt.Sprintf("could not find the package %s from %s", e.Name, e.From)
}

// Package walks up from the given directory and returns the directory of the first
// node_modules/<name> that contains a package.json
func Package(name, from string) (string, error) {
	from, err := filepath.Abs(from)
	if err != nil {
		return "", err
	}

	dir := from
	for {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(name))
		_, err := os.Stat(filepath.Join(candidate, "package.json"))
		if err == nil {
			return candidate, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", &NotFoundError{Name: name, From: from}
}

// Manifest reads the package.json of the given package directory
func Manifest(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read the manifest in %s", dir)
	}

	if !gjson.ValidBytes(data) {
		return nil, eris.Errorf("%s contains invalid JSON", filepath.Join(dir, "package.json"))
	}
	return data, nil
}

// Bin translates a logical binary name into an invocable path. The package's bin field is
// preferred, followed by node_modules/.bin and the PATH.
func Bin(name, from string) (string, error) {
	binName := path.Base(name)

	pkgDir, err := Package(name, from)
	if err == nil {
		manifest, err := Manifest(pkgDir)
		if err != nil {
			return "", err
		}

		script := binEntry(gjson.GetBytes(manifest, "bin"), binName)
		if script != "" {
			return filepath.Join(pkgDir, filepath.FromSlash(script)), nil
		}
	} else if _, ok := err.(*NotFoundError); !ok {
		return "", err
	}

	shim, err := binShim(binName, from)
	if err != nil {
		return "", err
	}
	if shim != "" {
		return shim, nil
	}

	found, err := exec.LookPath(binName)
	if err == nil {
		return found, nil
	}

	return "", &NotFoundError{Name: binName, From: from, Bin: true}
}

func binEntry(bin gjson.Result, name string) string {
	switch {
	case bin.Type == gjson.String:
		return bin.String()
	case bin.IsObject():
		entries := bin.Map()
		if entry, ok := entries[name]; ok {
			return entry.String()
		}

		if len(entries) == 1 {
			for _, entry := range entries {
				return entry.String()
			}
		}
	}

	return ""
}

func binShim(name, from string) (string, error) {
	dir, err := filepath.Abs(from)
	if err != nil {
		return "", err
	}

	names := []string{name}
	if runtime.GOOS == "windows" {
		names = []string{name + ".cmd", name + ".exe", name}
	}

	for {
		for _, item := range names {
			candidate := filepath.Join(dir, "node_modules", ".bin", item)
			info, err := os.Stat(candidate)
			if err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
