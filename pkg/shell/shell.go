// Package shell runs commands through the mvdan.cc/sh interpreter so they behave the same
// on every platform.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/posix"
)

// Command describes a single program invocation
type Command struct {
	Args []string
	Dir  string
	// Env defaults to the current process' environment
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes commands
type Runner struct {
	defaultExec interp.ExecHandlerFunc
}

// NewRunner creates a runner. Processes are killed killTimeout after their context is cancelled.
func NewRunner(killTimeout time.Duration) *Runner {
	return &Runner{
		defaultExec: interp.DefaultExecHandler(killTimeout),
	}
}

var safeArg = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote escapes a single argument for the shell
func Quote(arg string) string {
	if safeArg.MatchString(arg) {
		return arg
	}

	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}

	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + replacer.Replace(arg) + `"`
}

// Join quotes every argument and joins them into a command line
func Join(args []string) string {
	parts := make([]string, len(args))
	for idx, arg := range args {
		parts[idx] = Quote(arg)
	}
	return strings.Join(parts, " ")
}

func (r *Runner) execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && posix.IsCommand(args[0]) {
		// always use our cross-platform implementation for these operations to make sure
		// they behave consistently
		hc := interp.HandlerCtx(ctx)
		err := posix.Run(hc.Dir, args, hc.Stderr)
		if err != nil {
			fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], err.Error())
			return interp.NewExitStatus(1)
		}
		return nil
	}

	return r.defaultExec(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// Run executes the command and waits for it to finish
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 {
		return eris.New("no command passed")
	}

	line := Join(cmd.Args)
	file, err := syntax.NewParser().Parse(strings.NewReader(line), cmd.Args[0])
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", line)
	}

	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}

	stdout := cmd.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	stderr := cmd.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(cmd.Dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.ExecHandler(r.execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(cmd.Stdin, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	for _, stmt := range file.Stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stmt)
		buildlog.Log(ctx).Info().
			Bool("command", true).
			Str("dir", cmd.Dir).
			Msg(strBuffer.String())

		err = runner.Run(ctx, stmt)
		if err != nil {
			return eris.Wrapf(err, "command %s failed", line)
		}

		if runner.Exited() {
			break
		}
	}

	return ctx.Err()
}

// Output executes the command and returns what it printed to stdout
func (r *Runner) Output(ctx context.Context, cmd Command) (string, error) {
	var buffer strings.Builder
	cmd.Stdout = &buffer
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}

	err := r.Run(ctx, cmd)
	return buffer.String(), err
}
