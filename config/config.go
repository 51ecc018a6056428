/*Package config holds benchcal's configuration.

Values are layered: built-in defaults, then the YAML file, then environment
variables prefixed BENCHCAL_ with nested keys joined by underscores, e.g.
BENCHCAL_SESSION_ADDR overrides session.addr.  A missing file is not an
error.
*/
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	yml "gopkg.in/yaml.v2"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/store"
)

// FileName is the default configuration file
const FileName = "benchcal.yml"

// EnvPrefix prefixes environment overrides
const EnvPrefix = "BENCHCAL_"

// Session configures the connection to the bench's device server
type Session struct {
	// Addr is the device server, e.g. http://localhost:8000
	Addr string `koanf:"addr" yaml:"addr"`

	// Rate limits commands per second; 0 is unlimited
	Rate float64 `koanf:"rate" yaml:"rate"`

	// Timeout is the per request timeout, seconds
	Timeout float64 `koanf:"timeout" yaml:"timeout"`
}

// Log configures logging
type Log struct {
	// Level is one of debug, info, warn, error
	Level string `koanf:"level" yaml:"level"`

	// Dev selects human readable console output
	Dev bool `koanf:"dev" yaml:"dev"`
}

// Noise configures noise runs
type Noise struct {
	Exposures []float64 `koanf:"exposures" yaml:"exposures"`
}

// Power configures power runs
type Power struct {
	Min    float64 `koanf:"min" yaml:"min"`
	Max    float64 `koanf:"max" yaml:"max"`
	Points int     `koanf:"points" yaml:"points"`
}

// Correct configures batch correction
type Correct struct {
	// Out is where corrected spectra are written
	Out string `koanf:"out" yaml:"out"`

	// BGR is where noise-subtracted intermediates are written; empty skips them
	BGR string `koanf:"bgr" yaml:"bgr"`

	// FITS also writes each corrected spectrum as a FITS image
	FITS bool `koanf:"fits" yaml:"fits"`

	// Quiet is how long a watched file must settle before correction, seconds
	Quiet float64 `koanf:"quiet" yaml:"quiet"`
}

// Config is the whole configuration
type Config struct {
	// Root is the artifact store
	Root string `koanf:"root" yaml:"root"`

	// Bands is a band table YAML file; empty uses the built-in table
	Bands string `koanf:"bands" yaml:"bands"`

	Session Session `koanf:"session" yaml:"session"`
	Log     Log     `koanf:"log" yaml:"log"`
	Noise   Noise   `koanf:"noise" yaml:"noise"`
	Power   Power   `koanf:"power" yaml:"power"`
	Correct Correct `koanf:"correct" yaml:"correct"`
}

// Default is the configuration with nothing overridden
func Default() Config {
	return Config{
		Root: "data",
		Session: Session{
			Addr:    "http://localhost:8000",
			Rate:    20,
			Timeout: 120,
		},
		Log:   Log{Level: "info"},
		Noise: Noise{Exposures: []float64{1, 2, 5, 10}},
		Power: Power{Min: 250, Max: 800, Points: 20},
		Correct: Correct{
			Out:   "corrected",
			BGR:   "",
			FITS:  false,
			Quiet: 0.5,
		},
	}
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
}

// Load layers the defaults, the file at path and the environment
func Load(path string) (Config, error) {
	k := koanf.New(".")
	c := Config{}
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return c, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, errors.Wrapf(calerr.ErrConfiguration, "loading %s: %v", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return c, err
	}
	if err := k.Unmarshal("", &c); err != nil {
		return c, errors.Wrapf(calerr.ErrConfiguration, "decoding configuration: %v", err)
	}
	return c, c.Validate()
}

// Validate checks the values that have no sensible fallback
func (c Config) Validate() error {
	switch {
	case c.Root == "":
		return errors.Wrap(calerr.ErrConfiguration, "root must be set")
	case c.Session.Timeout <= 0:
		return errors.Wrapf(calerr.ErrConfiguration, "session timeout must be positive, got %v", c.Session.Timeout)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(calerr.ErrConfiguration, "log level: %v", err)
	}
	return nil
}

// Dump writes c as YAML
func Dump(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}

// Store opens the artifact store
func (c Config) Store() *store.Store {
	return store.New(c.Root)
}

// Table returns the band table, built-in unless Bands names a file
func (c Config) Table() (*bands.Table, error) {
	if c.Bands == "" {
		return bands.Default(), nil
	}
	return bands.LoadYAML(c.Bands)
}

// TimeoutDuration is the session timeout as a duration
func (s Session) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout * float64(time.Second))
}

// QuietDuration is the watch debounce as a duration
func (c Correct) QuietDuration() time.Duration {
	return time.Duration(c.Quiet * float64(time.Second))
}

// Logger builds the logger c.Log describes
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
