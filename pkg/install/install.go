// Package install makes sure the native, platform specific optional dependency of an npm package
// (i.e. @rollup/rollup-linux-x64-gnu for rollup) is present before the package is used.
package install

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/platform"
	"github.com/ngld/pkgbuild/pkg/resolve"
	"github.com/ngld/pkgbuild/pkg/shell"
)

// DefaultWindow is how long a failed attempt is reused before the install is retried
const DefaultWindow = 300 * time.Millisecond

// CommandRunner executes the package manager
type CommandRunner interface {
	Run(ctx context.Context, cmd shell.Command) error
}

// Request identifies one install target
type Request struct {
	// Name of the npm package whose optional dependencies should be checked
	Name string
	// Target is the platform qualifier, see platform.Target()
	Target string
	// Cwd is the project directory
	Cwd string
}

func (r Request) key() string {
	return r.Name + "|" + r.Target + "|" + r.Cwd
}

// Options configures an Installer
type Options struct {
	// NPM is the package manager binary, defaults to npm
	NPM string
	// Window defaults to DefaultWindow
	Window time.Duration
	// Env for the package manager, defaults to the process environment
	Env []string
	// Libc overrides the detected C library on linux
	Libc string
}

type attempt struct {
	lock      sync.Mutex
	attempted bool
	at        time.Time
	err       error
}

// Installer performs at most one install per request key at a time. Successful installs are
// remembered, failures are reused for the duration of the window.
type Installer struct {
	runner CommandRunner
	npm    string
	window time.Duration
	env    []string
	libc   string
	now    func() time.Time

	lock     sync.Mutex
	attempts map[string]*attempt
}

// New creates an Installer that runs the package manager through runner
func New(runner CommandRunner, opts Options) *Installer {
	if opts.NPM == "" {
		opts.NPM = "npm"
	}

	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	if opts.Libc == "" {
		opts.Libc = platform.Libc()
	}

	return &Installer{
		runner:   runner,
		npm:      opts.NPM,
		window:   opts.Window,
		env:      opts.Env,
		libc:     opts.Libc,
		now:      time.Now,
		attempts: make(map[string]*attempt),
	}
}

func (i *Installer) attemptFor(key string) *attempt {
	i.lock.Lock()
	defer i.lock.Unlock()

	item, ok := i.attempts[key]
	if !ok {
		item = new(attempt)
		i.attempts[key] = item
	}
	return item
}

// EnsureInstalled blocks until the native package for req is installed. Concurrent calls for the
// same request wait for the running attempt and share its result.
func (i *Installer) EnsureInstalled(ctx context.Context, req Request) error {
	item := i.attemptFor(req.key())
	item.lock.Lock()
	defer item.lock.Unlock()

	if item.attempted && (item.err == nil || i.now().Sub(item.at) < i.window) {
		buildlog.Log(ctx).Debug().
			Str("package", req.Name).
			Str("target", req.Target).
			Msg("install already attempted")
		return item.err
	}

	err := i.install(ctx, req)
	item.attempted = true
	item.at = i.now()
	item.err = err
	return err
}

func (i *Installer) install(ctx context.Context, req Request) error {
	pkgDir, err := resolve.Package(req.Name, req.Cwd)
	if err != nil {
		return eris.Wrapf(err, "%s has to be installed in %s", req.Name, req.Cwd)
	}

	manifest, err := resolve.Manifest(pkgDir)
	if err != nil {
		return err
	}

	optional := gjson.GetBytes(manifest, "optionalDependencies").Map()
	candidates := make([]string, 0)
	for name := range optional {
		if matchesTarget(name, req.Target) {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		buildlog.Log(ctx).Debug().
			Str("package", req.Name).
			Str("target", req.Target).
			Msg("no native package for this platform")
		return nil
	}

	sort.Strings(candidates)
	chosen := preferLibc(candidates, i.libc)
	installed, err := isInstalled(chosen, pkgDir)
	if err != nil || installed {
		return err
	}

	// without a libc specific variant any present candidate will do
	if i.libc == "" || !strings.Contains(chosen, "-"+i.libc) {
		for _, name := range candidates {
			installed, err := isInstalled(name, pkgDir)
			if err != nil || installed {
				return err
			}
		}
	}

	spec := chosen + "@" + optional[chosen].String()
	buildlog.Log(ctx).Info().
		Str("package", req.Name).
		Str("target", req.Target).
		Msgf("installing %s", spec)

	err = i.runner.Run(ctx, shell.Command{
		Args: []string{i.npm, "install", "--no-save", spec},
		Dir:  req.Cwd,
		Env:  i.env,
	})
	if err != nil {
		return eris.Wrapf(err, "failed to install %s", spec)
	}
	return nil
}

func isInstalled(name, from string) (bool, error) {
	_, err := resolve.Package(name, from)
	if err == nil {
		return true, nil
	}

	if _, ok := err.(*resolve.NotFoundError); ok {
		return false, nil
	}
	return false, err
}

// matchesTarget checks that target appears in name as a complete, dash separated segment
// ("linux-arm" must not match "linux-arm64-gnu")
func matchesTarget(name, target string) bool {
	if target == "" {
		return false
	}

	for offset := 0; offset < len(name); {
		idx := strings.Index(name[offset:], target)
		if idx < 0 {
			return false
		}

		start := offset + idx
		end := start + len(target)
		validStart := start == 0 || name[start-1] == '-' || name[start-1] == '/'
		validEnd := end == len(name) || name[end] == '-'
		if validStart && validEnd {
			return true
		}
		offset = start + 1
	}

	return false
}

func preferLibc(candidates []string, libc string) string {
	if libc != "" {
		for _, name := range candidates {
			if strings.Contains(name, "-"+libc) {
				return name
			}
		}
	}

	return candidates[0]
}
