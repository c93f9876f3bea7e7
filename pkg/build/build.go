// Package build runs every configured target of a package.
package build

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/project"
	"github.com/ngld/pkgbuild/pkg/queue"
	"github.com/ngld/pkgbuild/pkg/transpile"
	"github.com/ngld/pkgbuild/pkg/umd"
)

// Options configures a build
type Options struct {
	// Cwd is the package directory
	Cwd string
	// Concurrency is the number of targets built in parallel, defaults to 1
	Concurrency int
	// Targets overrides the targets from the project configuration
	Targets []string
	// Config is loaded from Cwd if nil
	Config *project.Config
	// UMD is passed to the umd target. Cwd and Config are filled in.
	UMD umd.Options
	// OnTarget is called after each target finished
	OnTarget func(target string, err error)
}

// Run builds all targets. callback is called exactly once.
func Run(ctx context.Context, args []string, opts Options, callback queue.Callback) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = project.Load(ctx, opts.Cwd)
		if err != nil {
			callback(err)
			return
		}
	}

	targets := Targets(cfg, opts.Targets)

	for _, target := range targets {
		switch target {
		case project.TargetCJS, project.TargetESM, project.TargetUMD:
		default:
			callback(eris.Errorf("unknown target %s (expected %s, %s or %s)", target, project.TargetCJS, project.TargetESM, project.TargetUMD))
			return
		}
	}

	var hookLock sync.Mutex
	notify := func(target string, done queue.Callback) queue.Callback {
		return func(err error) {
			if err != nil {
				buildlog.Log(ctx).Error().Err(err).Str("target", target).Msg("Target failed")
			}

			if opts.OnTarget != nil {
				hookLock.Lock()
				opts.OnTarget(target, err)
				hookLock.Unlock()
			}
			done(err)
		}
	}

	q := queue.New(opts.Concurrency)
	for _, target := range targets {
		target := target
		if target == project.TargetUMD {
			q.Defer(func(done queue.Callback) {
				umdOpts := opts.UMD
				umdOpts.Cwd = cfg.Root
				umdOpts.Config = cfg
				umd.Run(ctx, args, umdOpts, notify(target, done))
			})
			continue
		}

		q.Defer(func(done queue.Callback) {
			err := transpile.Build(buildlog.WithTask(ctx, target), cfg, target)
			notify(target, done)(err)
		})
	}

	q.Await(callback)
}

// Targets returns the targets a build with the given override runs
func Targets(cfg *project.Config, override []string) []string {
	if len(override) > 0 {
		return override
	}
	return cfg.Targets
}

// Build is the blocking version of Run
func Build(ctx context.Context, args []string, opts Options) error {
	result := make(chan error, 1)
	Run(ctx, args, opts, func(err error) {
		result <- err
	})
	return <-result
}
