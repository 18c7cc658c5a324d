// Package config assembles the run configuration from defaults, an
// optional YAML file, FSBENCH_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/logging"
	"github.com/runningwild/fsbench/pkg/sweep"
)

// Mode selects which phases a run executes.
type Mode int

const (
	Micro Mode = iota
	Behaviour
	Throughput
	Trace
)

func (m Mode) String() string {
	switch m {
	case Behaviour:
		return "behaviour"
	case Throughput:
		return "throughput"
	case Trace:
		return "trace"
	}
	return "micro"
}

// ParseMode accepts the mode names plus the "strace" and "behavior"
// spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "micro", "":
		return Micro, nil
	case "behaviour", "behavior":
		return Behaviour, nil
	case "throughput":
		return Throughput, nil
	case "trace", "strace":
		return Trace, nil
	}
	return 0, errs.New(errs.InvalidConfig, "unknown benchmark %q", s)
}

func (m Mode) MarshalYAML() (any, error) { return m.String(), nil }

// Config is the immutable configuration of one run.
type Config struct {
	Benchmark       Mode           `yaml:"benchmark"`
	IOSize          int            `yaml:"size"`
	RunTime         time.Duration  `yaml:"runtime"`
	Iterations      uint64         `yaml:"iterations"`
	Workload        string         `yaml:"workload,omitempty"`
	Mounts          []string       `yaml:"mount"`
	FSNames         []string       `yaml:"fs-name"`
	LogPath         string         `yaml:"log-path"`
	FilesetSize     int            `yaml:"fileset-size"`
	ProbeMinSize    int64          `yaml:"probe-min-size"`
	ProbeMaxSize    int64          `yaml:"probe-max-size"`
	ProbeStep       int64          `yaml:"probe-step,omitempty"`
	ProbeRepeats    int            `yaml:"probe-repeats"`
	ProbeMaxRuntime time.Duration  `yaml:"probe-max-runtime"`
	DropCaches      bool           `yaml:"drop-caches"`
	ResultsDB       string         `yaml:"results-db,omitempty"`
	Metrics         bool           `yaml:"metrics"`
	Logging         logging.Config `yaml:"logging"`
}

// Pair is one benchmarked filesystem.
type Pair struct {
	Mount  string
	FSName string
}

// Flag names double as config file keys.
const (
	keyConfig          = "config"
	keyBenchmark       = "benchmark"
	keyRunTime         = "runtime"
	keySize            = "size"
	keyIterations      = "iterations"
	keyMount           = "mount"
	keyFSName          = "fs-name"
	keyLogPath         = "log-path"
	keyWorkload        = "workload"
	keyFilesetSize     = "fileset-size"
	keyProbeMinSize    = "probe-min-size"
	keyProbeMaxSize    = "probe-max-size"
	keyProbeStep       = "probe-step"
	keyProbeRepeats    = "probe-repeats"
	keyProbeMaxRuntime = "probe-max-runtime"
	keyDropCaches      = "drop-caches"
	keyResultsDB       = "results-db"
	keyMetrics         = "metrics"
	keyLogLevel        = "log-level"
	keyLogFormat       = "log-format"
	keyLogOutput       = "log-output"
)

// RegisterFlags declares every setting on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(keyConfig, "", "YAML config file")
	fs.StringP(keyBenchmark, "b", "micro", "benchmark to run: micro, behaviour, throughput or trace (strace)")
	fs.StringP(keyRunTime, "r", "60", "run time per operation, in seconds or as a duration")
	fs.StringP(keySize, "s", "4KiB", "I/O size")
	fs.Uint64P(keyIterations, "i", 0, "successful ops per operation in behaviour mode")
	fs.StringArrayP(keyMount, "m", nil, "mounted filesystem to benchmark (repeatable)")
	fs.StringArrayP(keyFSName, "f", nil, "display name of the matching --mount (repeatable)")
	fs.StringP(keyLogPath, "l", "", "directory for result tables and plots")
	fs.StringP(keyWorkload, "w", "", "trace file to replay")
	fs.Int(keyFilesetSize, 1000, "files used by the read and write micro benchmarks")
	probe := sweep.DefaultConfig()
	fs.String(keyProbeMinSize, format.Bytes(uint64(probe.MinSize)), "smallest throughput probe transfer")
	fs.String(keyProbeMaxSize, format.Bytes(uint64(probe.MaxSize)), "largest throughput probe transfer")
	fs.String(keyProbeStep, "0", "linear probe step; 0 doubles the size each step")
	fs.Int(keyProbeRepeats, probe.Repeats, "timed transfers per probe size")
	fs.Duration(keyProbeMaxRuntime, probe.MaxRuntime, "deadline for each throughput probe")
	fs.Bool(keyDropCaches, false, "drop the page cache before each throughput probe")
	fs.String(keyResultsDB, "", "SQLite database to archive results in")
	fs.Bool(keyMetrics, false, "write a Prometheus textfile next to the results")
	fs.String(keyLogLevel, "info", "log level")
	fs.String(keyLogFormat, "console", "log format: console or json")
	fs.String(keyLogOutput, "stderr", "log output: stderr, stdout or a file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyBenchmark, "micro")
	v.SetDefault(keyRunTime, "60")
	v.SetDefault(keySize, "4KiB")
	v.SetDefault(keyFilesetSize, 1000)
	probe := sweep.DefaultConfig()
	v.SetDefault(keyProbeMinSize, format.Bytes(uint64(probe.MinSize)))
	v.SetDefault(keyProbeMaxSize, format.Bytes(uint64(probe.MaxSize)))
	v.SetDefault(keyProbeStep, "0")
	v.SetDefault(keyProbeRepeats, probe.Repeats)
	v.SetDefault(keyProbeMaxRuntime, probe.MaxRuntime)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "console")
	v.SetDefault(keyLogOutput, "stderr")
}

// Load merges defaults, the config file named by the "config" key,
// environment and the flags already bound to v.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("FSBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, errs.Wrap(errs.InvalidPath, err, "config file %s", file)
			}
			return nil, errs.Wrap(errs.ParseError, err, "config file %s", file)
		}
	}

	mode, err := ParseMode(v.GetString(keyBenchmark))
	if err != nil {
		return nil, err
	}
	runTime, err := parseRunTime(v.GetString(keyRunTime))
	if err != nil {
		return nil, err
	}
	ioSize, err := parseSize(keySize, v.GetString(keySize))
	if err != nil {
		return nil, err
	}
	minSize, err := parseSize(keyProbeMinSize, v.GetString(keyProbeMinSize))
	if err != nil {
		return nil, err
	}
	maxSize, err := parseSize(keyProbeMaxSize, v.GetString(keyProbeMaxSize))
	if err != nil {
		return nil, err
	}
	step, err := parseSize(keyProbeStep, v.GetString(keyProbeStep))
	if err != nil {
		return nil, err
	}

	return &Config{
		Benchmark:       mode,
		IOSize:          int(ioSize),
		RunTime:         runTime,
		Iterations:      v.GetUint64(keyIterations),
		Workload:        v.GetString(keyWorkload),
		Mounts:          v.GetStringSlice(keyMount),
		FSNames:         v.GetStringSlice(keyFSName),
		LogPath:         v.GetString(keyLogPath),
		FilesetSize:     v.GetInt(keyFilesetSize),
		ProbeMinSize:    minSize,
		ProbeMaxSize:    maxSize,
		ProbeStep:       step,
		ProbeRepeats:    v.GetInt(keyProbeRepeats),
		ProbeMaxRuntime: v.GetDuration(keyProbeMaxRuntime),
		DropCaches:      v.GetBool(keyDropCaches),
		ResultsDB:       v.GetString(keyResultsDB),
		Metrics:         v.GetBool(keyMetrics),
		Logging: logging.Config{
			Level:      v.GetString(keyLogLevel),
			Format:     v.GetString(keyLogFormat),
			OutputPath: v.GetString(keyLogOutput),
		},
	}, nil
}

// parseRunTime takes plain seconds ("60", "0.5") or a Go duration ("2m").
func parseRunTime(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errs.Wrap(errs.FormatError, err, "runtime %q", s)
	}
	return d, nil
}

func parseSize(key, s string) (int64, error) {
	n, err := format.ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return int64(n), nil
}

// Validate checks the configuration against the filesystem. The log
// directory is created when missing.
func (c *Config) Validate() error {
	if len(c.Mounts) == 0 {
		return errs.New(errs.InvalidConfig, "at least one --mount is required")
	}
	if len(c.Mounts) != len(c.FSNames) {
		return errs.New(errs.InvalidConfig, "%d mounts but %d filesystem names", len(c.Mounts), len(c.FSNames))
	}
	seen := make(map[string]bool, len(c.Mounts))
	for _, m := range c.Mounts {
		clean := filepath.Clean(m)
		if seen[clean] {
			return errs.New(errs.InvalidConfig, "mount %s is listed twice", m)
		}
		seen[clean] = true
		if err := fsops.CheckWritable(m); err != nil {
			return err
		}
	}
	for _, n := range c.FSNames {
		if n == "" || strings.ContainsRune(n, filepath.Separator) {
			return errs.New(errs.InvalidConfig, "invalid filesystem name %q", n)
		}
	}

	if c.LogPath == "" {
		return errs.New(errs.InvalidConfig, "--log-path is required")
	}
	if err := fsops.MakeDirAll(c.LogPath); err != nil {
		return errs.Wrap(errs.InvalidPath, err, "log path")
	}
	if err := fsops.CheckWritable(c.LogPath); err != nil {
		return err
	}

	if c.IOSize <= 0 {
		return errs.New(errs.InvalidConfig, "io size must be positive")
	}
	if c.RunTime <= 0 {
		return errs.New(errs.InvalidConfig, "run time must be positive")
	}
	if c.FilesetSize < 1 {
		return errs.New(errs.InvalidConfig, "fileset size must be at least 1")
	}
	switch c.Benchmark {
	case Trace:
		if c.Workload == "" {
			return errs.New(errs.InvalidConfig, "the trace benchmark requires --workload")
		}
	case Behaviour:
		if c.Iterations == 0 {
			return errs.New(errs.InvalidConfig, "the behaviour benchmark requires --iterations")
		}
	}
	if c.Workload != "" {
		if _, err := os.Stat(c.Workload); err != nil {
			return errs.Wrap(errs.InvalidPath, err, "workload")
		}
	}
	return nil
}

// Pairs lists the (mount, name) pairs in the order given.
func (c *Config) Pairs() []Pair {
	out := make([]Pair, len(c.Mounts))
	for i := range c.Mounts {
		out[i] = Pair{Mount: c.Mounts[i], FSName: c.FSNames[i]}
	}
	return out
}

// WriteYAML records the effective configuration.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errs.Wrap(errs.FormatError, err, "encode config")
	}
	return errs.IOf(os.WriteFile(path, data, 0o644), "write %s", path)
}
