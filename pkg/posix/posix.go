// Package posix contains cross-platform implementations of the few POSIX file commands
// that build scripts rely on (rm, mkdir and mv).
package posix

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
)

type command func(dir string, args []string, stderr io.Writer) error

var commands = map[string]command{
	"rm":    rmCommand,
	"mkdir": mkdirCommand,
	"mv":    mvCommand,
}

// IsCommand reports whether name is handled by Run
func IsCommand(name string) bool {
	_, ok := commands[name]
	return ok
}

// Run executes one of the supported commands. args[0] is the command name and relative paths
// are resolved against dir.
func Run(dir string, args []string, stderr io.Writer) error {
	if len(args) < 1 {
		return eris.New("no command passed")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return eris.Errorf("unsupported command %s", args[0])
	}

	return cmd(dir, args[1:], stderr)
}

// SafeRemove deletes path recursively. A missing path is not an error.
func SafeRemove(path string) error {
	err := os.RemoveAll(path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Could not delete %s", path)
	}
	return nil
}

// Remove deletes the given items. Directories require recursive, force ignores missing items.
func Remove(items []string, recursive, force bool) error {
	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}

// Mkdir creates the given directories
func Mkdir(items []string, parents bool) error {
	for _, item := range items {
		var err error
		if parents {
			err = os.MkdirAll(item, 0o770)
		} else {
			err = os.Mkdir(item, 0o770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}

	return nil
}

// Move moves the given items into dest. dest has to be a directory when more than one item is passed.
func Move(items []string, dest string) error {
	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory!", destParent)
	}

	info, err = os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}
	destIsDir := err == nil && info.IsDir()

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

func resolveItems(dir string, args []string, allowMissing bool) ([]string, error) {
	items := make([]string, 0, len(args))
	for _, arg := range args {
		if !filepath.IsAbs(arg) {
			arg = filepath.Join(dir, arg)
		}

		// the shell expands globs on POSIX systems but cmd.exe leaves that to the program
		if runtime.GOOS != "windows" {
			items = append(items, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowMissing {
				continue
			}
			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if stderr == nil {
		stderr = io.Discard
	}
	flags.SetOutput(stderr)
	return flags
}

func rmCommand(dir string, args []string, stderr io.Writer) error {
	flags := newFlagSet("rm", stderr)
	recursive := flags.BoolP("recursive", "r", false, "recursively delete directories")
	force := flags.BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	if err := flags.Parse(args); err != nil {
		return eris.Wrap(err, "rm")
	}

	items, err := resolveItems(dir, flags.Args(), *force)
	if err != nil {
		return err
	}

	return Remove(items, *recursive, *force)
}

func mkdirCommand(dir string, args []string, stderr io.Writer) error {
	flags := newFlagSet("mkdir", stderr)
	parents := flags.BoolP("parents", "p", false, "create parent directories as needed")
	if err := flags.Parse(args); err != nil {
		return eris.Wrap(err, "mkdir")
	}

	items := make([]string, len(flags.Args()))
	for idx, item := range flags.Args() {
		if !filepath.IsAbs(item) {
			item = filepath.Join(dir, item)
		}
		items[idx] = item
	}

	return Mkdir(items, *parents)
}

func mvCommand(dir string, args []string, stderr io.Writer) error {
	flags := newFlagSet("mv", stderr)
	if err := flags.Parse(args); err != nil {
		return eris.Wrap(err, "mv")
	}

	rest := flags.Args()
	if len(rest) < 2 {
		return eris.New("Not enough parameters")
	}

	items, err := resolveItems(dir, rest[:len(rest)-1], false)
	if err != nil {
		return err
	}

	dest := rest[len(rest)-1]
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(dir, dest)
	}

	return Move(items, dest)
}
