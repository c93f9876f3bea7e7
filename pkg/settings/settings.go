// Package settings contains the tool settings of pkgbuild. Settings are read from pkgbuild.toml and
// PKGBUILD_* environment variables; the CLI flags override them.
package settings

import (
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the settings file looked up in the project directory
const FileName = "pkgbuild.toml"

// Settings describes all tool settings
type Settings struct {
	Log struct {
		Level string `default:"info" toml:"level" usage:"Log level (debug, info, warn or error)"`
		JSON  bool   `default:"false" toml:"json" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log"`
	Concurrency int `default:"1" toml:"concurrency" usage:"Number of targets built in parallel"`
	Node        struct {
		Binary  string `default:"node" toml:"binary" usage:"Node binary used to run the bundler"`
		Require string `default:">=20" toml:"require" usage:"Required node version"`
	} `toml:"node"`
	NPM struct {
		Binary string `default:"npm" toml:"binary" usage:"Package manager used to install native dependencies"`
	} `toml:"npm"`
	Install struct {
		Window time.Duration `default:"300ms" toml:"window" usage:"How long a failed install is reused before retrying"`
	} `toml:"install"`
	UMD struct {
		ConfigRoot string `toml:"config_root" usage:"Directory with config.js and config.min.js for rollup"`
	} `toml:"umd"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty settings object and returns a new Loader for it. The settings file is
// looked up in dir.
func Loader(dir string) (*Settings, *aconfig.Loader) {
	cfg := Settings{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		EnvPrefix:        "PKGBUILD",
		Files:            []string{filepath.Join(dir, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads and validates the settings for the project in dir
func Load(dir string) (*Settings, error) {
	cfg, loader := Loader(dir)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load settings")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all fields have valid values
func (cfg *Settings) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Concurrency < 1 {
		return eris.Errorf(`Invalid value for concurrency: %d (must be at least 1)`, cfg.Concurrency)
	}

	_, err := semver.NewConstraint(cfg.Node.Require)
	if err != nil {
		return eris.Wrapf(err, `Invalid value for node.require: %s`, cfg.Node.Require)
	}

	if cfg.Install.Window < 0 {
		return eris.Errorf(`Invalid value for install.window: %s`, cfg.Install.Window)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Settings) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// SetLogLevel validates and applies a log level
func (cfg *Settings) SetLogLevel(level string) error {
	if _, ok := logLevels[level]; !ok {
		return eris.Errorf(`Invalid log level: %s`, level)
	}

	cfg.Log.Level = level
	return nil
}
