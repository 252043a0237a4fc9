package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the directory layout and fetch settings for one reqd run.
// It is assembled once at startup and passed explicitly into every component.
type Config struct {
	// Prefix is the root of the managed tree. The settings file cannot
	// relocate the prefix that was used to find it.
	Prefix string `yaml:"prefix"`
	// RecipeDir is the directory holding executable recipes.
	RecipeDir string `yaml:"sbin"`
	// SourceDir is the directory holding per-recipe resource downloads.
	SourceDir string `yaml:"src"`
	// VarDir is the directory holding runtime state.
	VarDir string `yaml:"var"`
	// EventDir is the directory holding the install event markers.
	EventDir string `yaml:"events"`
	// Mirror is an optional base URL that replaces every resource URL.
	Mirror string `yaml:"mirror"`
	// Jobs is the worker-count hint exported to recipes for their own
	// build tooling. reqd itself runs recipes sequentially.
	Jobs int `yaml:"jobs"`
	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`

	// BinDir is <prefix>/bin, placed first on PATH for recipe subprocesses.
	BinDir string `yaml:"-"`
	// EtcDir is <prefix>/etc, home of the optional settings file.
	EtcDir string `yaml:"-"`
	// Executable is the absolute path of the running reqd binary,
	// exported to recipes for re-entrant invocations.
	Executable string `yaml:"-"`
}

// Overrides carries explicit settings, typically from command-line flags,
// that take precedence over both the environment and the settings file.
// Zero values mean "not set".
type Overrides struct {
	Prefix    string
	RecipeDir string
	SourceDir string
	VarDir    string
	EventDir  string
	Mirror    string
	Jobs      int
	Verbose   bool
}

const (
	// DefaultConfigFilename is the optional settings file looked up under etc/.
	DefaultConfigFilename = "reqd.yaml"

	// DefaultDirPermissions is the permission for directories created on startup.
	DefaultDirPermissions = 0o755

	// DefaultFilePermissions is the permission for the settings file.
	DefaultFilePermissions = 0o600
)

// Environment variable names read at startup and exported to recipe
// subprocesses.
const (
	EnvSelf      = "REQD"
	EnvPrefix    = "REQD_PREFIX"
	EnvBin       = "REQD_BIN"
	EnvRecipes   = "REQD_SBIN"
	EnvEtc       = "REQD_ETC"
	EnvSources   = "REQD_SRC"
	EnvVar       = "REQD_VAR"
	EnvEvents    = "REQD_EVENTS"
	EnvMirror    = "REQD_MIRROR"
	EnvJobs      = "REQD_JOBS"
	EnvVerbose   = "REQD_VERBOSE"
	EnvRecipe    = "REQD_RECIPE"
	EnvResources = "REQD_RES"
	EnvLogLevel  = "REQD_LOG_LEVEL"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPrefixRequired is returned when no prefix can be determined.
	errPrefixRequired = errors.New("prefix must be provided")
)

// Load assembles the effective configuration for one run. Precedence per
// field: overrides, then REQD_* environment variables, then the optional
// settings file at etc/reqd.yaml under the prefix, then built-in defaults.
func Load(executable string, o Overrides) (*Config, error) {
	prefix := firstNonEmpty(o.Prefix, os.Getenv(EnvPrefix))
	if prefix == "" {
		prefix = defaultPrefix(executable)
	}

	prefix, err := filepath.Abs(prefix)
	if err != nil {
		return nil, fmt.Errorf("resolve prefix: %w", err)
	}

	fromFile, err := readSettings(filepath.Join(prefix, "etc", DefaultConfigFilename))
	if err != nil {
		return nil, err
	}

	jobs, err := envJobs()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Prefix:     prefix,
		RecipeDir:  firstNonEmpty(o.RecipeDir, os.Getenv(EnvRecipes), fromFile.RecipeDir),
		SourceDir:  firstNonEmpty(o.SourceDir, os.Getenv(EnvSources), fromFile.SourceDir),
		VarDir:     firstNonEmpty(o.VarDir, os.Getenv(EnvVar), fromFile.VarDir),
		EventDir:   firstNonEmpty(o.EventDir, os.Getenv(EnvEvents), fromFile.EventDir),
		Mirror:     firstNonEmpty(o.Mirror, os.Getenv(EnvMirror), fromFile.Mirror),
		Verbose:    o.Verbose || envBool(EnvVerbose) || fromFile.Verbose,
		Executable: executable,
	}

	cfg.Jobs = firstPositive(o.Jobs, jobs, fromFile.Jobs)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the settings file to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks field formats, normalizes paths to absolute, and fills
// derived directories and defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Prefix == "" {
		return errPrefixRequired
	}

	var err error
	if cfg.Prefix, err = filepath.Abs(cfg.Prefix); err != nil {
		return fmt.Errorf("resolve prefix: %w", err)
	}

	// Fill layout defaults relative to the prefix.
	if cfg.RecipeDir == "" {
		cfg.RecipeDir = filepath.Join(cfg.Prefix, "sbin")
	}

	if cfg.SourceDir == "" {
		cfg.SourceDir = filepath.Join(cfg.Prefix, "src")
	}

	if cfg.VarDir == "" {
		cfg.VarDir = filepath.Join(cfg.Prefix, "var")
	}

	if cfg.EventDir == "" {
		cfg.EventDir = filepath.Join(cfg.VarDir, "events")
	}

	for _, dir := range []*string{&cfg.RecipeDir, &cfg.SourceDir, &cfg.VarDir, &cfg.EventDir} {
		if *dir, err = filepath.Abs(*dir); err != nil {
			return fmt.Errorf("resolve directory: %w", err)
		}
	}

	cfg.BinDir = filepath.Join(cfg.Prefix, "bin")
	cfg.EtcDir = filepath.Join(cfg.Prefix, "etc")

	if cfg.Executable != "" {
		if cfg.Executable, err = filepath.Abs(cfg.Executable); err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
	}

	// Set default jobs hint if not specified
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.NumCPU()
	}

	if cfg.Mirror == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.Mirror); err != nil {
		return fmt.Errorf("invalid mirror URL: %w", err)
	}

	cfg.Mirror = strings.TrimRight(cfg.Mirror, "/")

	return nil
}

// EnsureLayout creates the prefix directory tree expected by recipes.
// Per-recipe resource directories are created on demand, not here.
func (c *Config) EnsureLayout() error {
	dirs := []string{c.Prefix, c.BinDir, c.RecipeDir, c.EtcDir, c.SourceDir, c.VarDir, c.EventDir}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}

// ResourceDir returns the download directory for the named recipe.
func (c *Config) ResourceDir(recipeName string) string {
	return filepath.Join(c.SourceDir, recipeName)
}

// ProgramName returns the basename the tool was installed as, defaulting
// to "reqd". The name is reserved and never treated as a recipe.
func (c *Config) ProgramName() string {
	if c.Executable == "" {
		return "reqd"
	}

	return filepath.Base(c.Executable)
}

// Environ renders the environment for a recipe subprocess: the parent
// environment plus the REQD_* contract values, with <prefix>/bin taking
// priority on PATH so recipes see tools installed by earlier recipes.
// Later entries win for keys duplicated from the parent environment.
func (c *Config) Environ(recipeName string) []string {
	path := c.BinDir
	if parent := os.Getenv("PATH"); parent != "" {
		path += string(os.PathListSeparator) + parent
	}

	env := append(os.Environ(),
		EnvSelf+"="+c.Executable,
		EnvPrefix+"="+c.Prefix,
		EnvBin+"="+c.BinDir,
		EnvRecipes+"="+c.RecipeDir,
		EnvEtc+"="+c.EtcDir,
		EnvSources+"="+c.SourceDir,
		EnvVar+"="+c.VarDir,
		EnvEvents+"="+c.EventDir,
		EnvRecipe+"="+recipeName,
		EnvResources+"="+c.ResourceDir(recipeName),
		EnvJobs+"="+strconv.Itoa(c.Jobs),
		"PATH="+path,
	)

	if c.Mirror != "" {
		env = append(env, EnvMirror+"="+c.Mirror)
	}

	return env
}

// readSettings loads the optional settings file. A missing file yields an
// empty Config, not an error.
func readSettings(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// defaultPrefix derives the tree root from the location of the running
// executable: a reqd installed at <prefix>/bin/reqd manages <prefix>.
// Without a usable executable path it falls back to the working directory.
func defaultPrefix(executable string) string {
	if executable != "" {
		if abs, err := filepath.Abs(executable); err == nil {
			return filepath.Dir(filepath.Dir(abs))
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return "."
	}

	return wd
}

// envJobs parses the jobs hint from the environment. Unset means zero.
func envJobs() (int, error) {
	value := os.Getenv(EnvJobs)
	if value == "" {
		return 0, nil
	}

	jobs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", EnvJobs, err)
	}

	return jobs, nil
}

// envBool reports whether the named variable is set to a truthy value.
// Values that do not parse as booleans count as set.
func envBool(name string) bool {
	value := os.Getenv(name)
	if value == "" {
		return false
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return true
	}

	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

func firstPositive(values ...int) int {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}

	return 0
}
