// Package project loads the build configuration of a package: its package.json, the tsds options
// (from .tsdsrc.json, .tsdsrc.yml or the "tsds" key of package.json) and its tsconfig.json.
//
// The result is a Config value that is created once per build and passed to every step that needs
// it. Nothing in this package keeps global state.
package project
