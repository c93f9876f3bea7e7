package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/shell"
)

const rollupManifest = `{
	"name": "rollup",
	"version": "4.9.0",
	"bin": {"rollup": "dist/bin/rollup"},
	"optionalDependencies": {
		"@rollup/rollup-darwin-arm64": "4.9.0",
		"@rollup/rollup-linux-arm64-gnu": "4.9.0",
		"@rollup/rollup-linux-x64-gnu": "4.9.0",
		"@rollup/rollup-linux-x64-musl": "4.9.0",
		"@rollup/rollup-win32-x64-msvc": "4.9.0"
	}
}`

type fakeRunner struct {
	lock     sync.Mutex
	commands [][]string
	delay    time.Duration
	err      error
	// create installs the package into root when set
	root string
}

func (f *fakeRunner) Run(_ context.Context, cmd shell.Command) error {
	time.Sleep(f.delay)

	f.lock.Lock()
	defer f.lock.Unlock()
	f.commands = append(f.commands, cmd.Args)
	if f.err != nil {
		return f.err
	}

	if f.root != "" {
		spec := cmd.Args[len(cmd.Args)-1]
		name := spec[:len(spec)-len("@4.9.0")]
		writePackage(nil, f.root, name, `{}`)
	}
	return nil
}

func (f *fakeRunner) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.commands)
}

func writePackage(t *testing.T, root, name, manifest string) {
	dir := filepath.Join(root, "node_modules", filepath.FromSlash(name))
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0o644)
	}

	if err != nil {
		if t != nil {
			t.Fatal(err)
		}
		panic(err)
	}
}

func testContext() context.Context {
	logger := zerolog.Nop()
	return buildlog.WithLogger(context.Background(), &logger)
}

func newProject(t *testing.T) string {
	root := t.TempDir()
	writePackage(t, root, "rollup", rollupManifest)
	return root
}

func TestInstallsMatchingLibcVariant(t *testing.T) {
	root := newProject(t)
	runner := &fakeRunner{root: root}
	installer := New(runner, Options{Libc: "musl"})

	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "linux-x64", Cwd: root})
	require.NoError(t, err)
	require.Equal(t, 1, runner.count())
	assert.Equal(t, []string{"npm", "install", "--no-save", "@rollup/rollup-linux-x64-musl@4.9.0"}, runner.commands[0])
}

func TestSkipsWhenAlreadyInstalled(t *testing.T) {
	root := newProject(t)
	writePackage(t, root, "@rollup/rollup-darwin-arm64", `{}`)
	runner := &fakeRunner{}
	installer := New(runner, Options{})

	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "darwin-arm64", Cwd: root})
	require.NoError(t, err)
	assert.Equal(t, 0, runner.count())
}

func TestWrongLibcVariantDoesNotCount(t *testing.T) {
	root := newProject(t)
	writePackage(t, root, "@rollup/rollup-linux-x64-musl", `{}`)
	runner := &fakeRunner{root: root}
	installer := New(runner, Options{Libc: "gnu"})

	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "linux-x64", Cwd: root})
	require.NoError(t, err)
	require.Equal(t, 1, runner.count())
	assert.Equal(t, []string{"npm", "install", "--no-save", "@rollup/rollup-linux-x64-gnu@4.9.0"}, runner.commands[0])
}

func TestPreferredLibcVariantPresent(t *testing.T) {
	root := newProject(t)
	writePackage(t, root, "@rollup/rollup-linux-x64-gnu", `{}`)
	runner := &fakeRunner{}
	installer := New(runner, Options{Libc: "gnu"})

	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "linux-x64", Cwd: root})
	require.NoError(t, err)
	assert.Equal(t, 0, runner.count())
}

func TestNothingToInstallForUnknownPlatform(t *testing.T) {
	root := newProject(t)
	runner := &fakeRunner{}
	installer := New(runner, Options{})

	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "aix-ppc64", Cwd: root})
	require.NoError(t, err)
	assert.Equal(t, 0, runner.count())
}

func TestMissingPackageFails(t *testing.T) {
	installer := New(&fakeRunner{}, Options{})
	err := installer.EnsureInstalled(testContext(), Request{Name: "rollup", Target: "linux-x64", Cwd: t.TempDir()})
	assert.Error(t, err)
}

func TestConcurrentCallsInstallOnce(t *testing.T) {
	root := newProject(t)
	runner := &fakeRunner{root: root, delay: 20 * time.Millisecond}
	installer := New(runner, Options{Libc: "gnu", NPM: "pnpm"})
	req := Request{Name: "rollup", Target: "linux-x64", Cwd: root}

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if installer.EnsureInstalled(testContext(), req) != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 0, failures)
	require.Equal(t, 1, runner.count())
	assert.Equal(t, "pnpm", runner.commands[0][0])
	assert.Equal(t, "@rollup/rollup-linux-x64-gnu@4.9.0", runner.commands[0][3])

	// later calls are suppressed as well
	require.NoError(t, installer.EnsureInstalled(testContext(), req))
	assert.Equal(t, 1, runner.count())
}

func TestFailedAttemptIsRetriedAfterWindow(t *testing.T) {
	root := newProject(t)
	failure := errors.New("registry unreachable")
	runner := &fakeRunner{err: failure}
	installer := New(runner, Options{Libc: "gnu", Window: time.Minute})

	now := time.Now()
	installer.now = func() time.Time { return now }
	req := Request{Name: "rollup", Target: "linux-x64", Cwd: root}

	err := installer.EnsureInstalled(testContext(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry unreachable")

	err = installer.EnsureInstalled(testContext(), req)
	require.Error(t, err)
	assert.Equal(t, 1, runner.count())

	now = now.Add(2 * time.Minute)
	runner.err = nil
	require.NoError(t, installer.EnsureInstalled(testContext(), req))
	assert.Equal(t, 2, runner.count())
}

func TestMatchesTarget(t *testing.T) {
	assert.True(t, matchesTarget("@rollup/rollup-linux-arm-gnueabihf", "linux-arm"))
	assert.False(t, matchesTarget("@rollup/rollup-linux-arm64-gnu", "linux-arm"))
	assert.True(t, matchesTarget("@esbuild/linux-x64", "linux-x64"))
	assert.True(t, matchesTarget("@rollup/rollup-win32-x64-msvc", "win32-x64"))
	assert.False(t, matchesTarget("@rollup/rollup-win32-x64-msvc", ""))
	assert.False(t, matchesTarget("fsevents", "darwin-arm64"))
}
