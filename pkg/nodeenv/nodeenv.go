// Package nodeenv checks that the node runtime used to run bundlers is recent enough.
package nodeenv

import (
	"context"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/ngld/pkgbuild/pkg/shell"
)

// DefaultConstraint is the oldest node release the bundler configs support
const DefaultConstraint = ">=20"

// OutputRunner runs a command and returns its stdout
type OutputRunner interface {
	Output(ctx context.Context, cmd shell.Command) (string, error)
}

// VersionError is returned when the installed node doesn't satisfy the constraint
type VersionError struct {
	Found      *semver.Version
	Constraint string
}

var _ error = (*VersionError)(nil)

func (e *VersionError) Error() string {
	return "node " + e.Found.String() + " does not satisfy " + e.Constraint + ", please update node"
}

// ParseVersion parses the output of node --version (i.e. v20.11.1)
func ParseVersion(output string) (*semver.Version, error) {
	output = strings.TrimSpace(output)
	version, err := semver.NewVersion(strings.TrimPrefix(output, "v"))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse node version %q", output)
	}

	return version, nil
}

// Version runs the node binary and returns its version
func Version(ctx context.Context, runner OutputRunner, binary, dir string) (*semver.Version, error) {
	out, err := runner.Output(ctx, shell.Command{
		Args: []string{binary, "--version"},
		Dir:  dir,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to run %s", binary)
	}

	return ParseVersion(out)
}

// Check verifies version against constraint
func Check(version *semver.Version, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return eris.Wrapf(err, "invalid node constraint %s", constraint)
	}

	if !c.Check(version) {
		return &VersionError{Found: version, Constraint: constraint}
	}
	return nil
}

// Require fails if the node binary is missing or older than the constraint
func Require(ctx context.Context, runner OutputRunner, binary, dir, constraint string) error {
	version, err := Version(ctx, runner, binary, dir)
	if err != nil {
		return err
	}

	return Check(version, constraint)
}
