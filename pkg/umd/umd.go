// Package umd bundles a package into a UMD build with rollup.
package umd

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/install"
	"github.com/ngld/pkgbuild/pkg/nodeenv"
	"github.com/ngld/pkgbuild/pkg/platform"
	"github.com/ngld/pkgbuild/pkg/posix"
	"github.com/ngld/pkgbuild/pkg/project"
	"github.com/ngld/pkgbuild/pkg/queue"
	"github.com/ngld/pkgbuild/pkg/resolve"
	"github.com/ngld/pkgbuild/pkg/shell"
)

// Bundler is the npm package providing the bundler binary
const Bundler = "rollup"

// Runner executes external processes
type Runner interface {
	nodeenv.OutputRunner
	install.CommandRunner
}

// Installer makes sure the bundler's native dependency is present
type Installer interface {
	EnsureInstalled(ctx context.Context, req install.Request) error
}

// Options configures a UMD build
type Options struct {
	// Cwd defaults to the current directory
	Cwd string
	// ConfigRoot contains externally authored config.js and config.min.js. Configs are rendered
	// from the project configuration if empty.
	ConfigRoot string
	// Node defaults to "node"
	Node string
	// NodeConstraint defaults to nodeenv.DefaultConstraint
	NodeConstraint string
	// Config is loaded from Cwd if nil
	Config    *project.Config
	Runner    Runner
	Installer Installer
	Stdout    io.Writer
	Stderr    io.Writer
}

func (o *Options) defaults() error {
	if o.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to determine the working directory")
		}
		o.Cwd = cwd
	} else {
		cwd, err := filepath.Abs(o.Cwd)
		if err != nil {
			return eris.Wrapf(err, "failed to resolve %s", o.Cwd)
		}
		o.Cwd = cwd
	}

	if o.Node == "" {
		o.Node = "node"
	}
	if o.NodeConstraint == "" {
		o.NodeConstraint = nodeenv.DefaultConstraint
	}
	if o.Runner == nil {
		o.Runner = shell.NewRunner(2 * time.Second)
	}
	if o.Installer == nil {
		o.Installer = install.New(o.Runner, install.Options{})
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return nil
}

// Run builds dist/umd. Extra args are passed to every rollup invocation. callback is called exactly
// once; setup errors are reported before any step starts.
func Run(ctx context.Context, args []string, opts Options, callback queue.Callback) {
	ctx = buildlog.WithTask(ctx, project.TargetUMD)

	configs, cmdPrefix, err := setup(ctx, &opts)
	if err != nil {
		callback(err)
		return
	}

	env := opts.Config.Env()
	dest := filepath.Join(opts.Cwd, "dist", "umd")

	q := queue.New(1)
	q.Defer(queue.Func(func() error {
		buildlog.Log(ctx).Debug().Str("path", dest).Msg("Removing previous output")
		return posix.SafeRemove(dest)
	}))

	for _, config := range configs.Files {
		cmd := shell.Command{
			Args:   append(append(append([]string{}, cmdPrefix...), "--config", config), args...),
			Dir:    opts.Cwd,
			Env:    env,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
		}

		q.Defer(queue.Func(func() error {
			return opts.Runner.Run(ctx, cmd)
		}))
	}

	q.Await(func(err error) {
		cleanupErr := configs.Cleanup()
		if cleanupErr != nil {
			buildlog.Log(ctx).Warn().Err(cleanupErr).Msg("Failed to clean up rendered configs")
		}

		if err == nil {
			reportSizes(ctx, dest)
		}
		callback(err)
	})
}

// Build is the blocking version of Run
func Build(ctx context.Context, args []string, opts Options) error {
	result := make(chan error, 1)
	Run(ctx, args, opts, func(err error) {
		result <- err
	})
	return <-result
}

func setup(ctx context.Context, opts *Options) (*Configs, []string, error) {
	err := opts.defaults()
	if err != nil {
		return nil, nil, err
	}

	err = nodeenv.Require(ctx, opts.Runner, opts.Node, opts.Cwd, opts.NodeConstraint)
	if err != nil {
		return nil, nil, err
	}

	err = opts.Installer.EnsureInstalled(ctx, install.Request{
		Name:   Bundler,
		Target: platform.Target(),
		Cwd:    opts.Cwd,
	})
	if err != nil {
		return nil, nil, err
	}

	bin, err := resolve.Bin(Bundler, opts.Cwd)
	if err != nil {
		return nil, nil, err
	}

	cmdPrefix := []string{bin}
	if isNodeScript(bin) {
		cmdPrefix = []string{opts.Node, bin}
	}

	if opts.Config == nil {
		opts.Config, err = project.Load(ctx, opts.Cwd)
		if err != nil {
			return nil, nil, err
		}
	}

	var configs *Configs
	if opts.ConfigRoot != "" {
		configRoot := opts.ConfigRoot
		if !filepath.IsAbs(configRoot) {
			configRoot = filepath.Join(opts.Cwd, configRoot)
		}
		configs, err = ExternalConfigs(configRoot)
	} else {
		configs, err = RenderConfigs(opts.Config)
	}
	if err != nil {
		return nil, nil, err
	}

	return configs, cmdPrefix, nil
}

// isNodeScript reports whether path is a JavaScript file that has to be launched through node
func isNodeScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return true
	case "":
	default:
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !eris.Is(err, io.EOF) {
		return false
	}
	return strings.HasPrefix(line, "#!") && strings.Contains(line, "node")
}

func reportSizes(ctx context.Context, dest string) {
	items, err := os.ReadDir(dest)
	if err != nil {
		buildlog.Log(ctx).Warn().Err(err).Msg("Failed to list bundles")
		return
	}

	for _, item := range items {
		name := item.Name()
		if item.IsDir() || strings.HasSuffix(name, ".map") {
			continue
		}

		size, compressed, err := BundleSize(filepath.Join(dest, name))
		if err != nil {
			buildlog.Log(ctx).Warn().Err(err).Str("file", name).Msg("Failed to measure bundle")
			continue
		}

		buildlog.Log(ctx).Info().
			Str("file", name).
			Int("size", size).
			Int("brotli", compressed).
			Msgf("%s: %d bytes, %d bytes with brotli", name, size, compressed)
	}
}

// BundleSize returns the raw and the brotli compressed size of a file
func BundleSize(path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "failed to read %s", path)
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	_, err = w.Write(data)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "failed to compress %s", path)
	}

	err = w.Close()
	if err != nil {
		return 0, 0, eris.Wrapf(err, "failed to compress %s", path)
	}

	return len(data), buf.Len(), nil
}
