package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/imaging"
)

type LogConfig struct {
	Level string `toml:"level"`
}

type InputConfig struct {
	// Largest container file read from disk, after zstd. 0 means no limit.
	MaxFileSize int64 `toml:"max_file_size"`
	// Largest decompressed bundle payload. 0 means no limit.
	MaxDataSize int64 `toml:"max_data_size"`
}

type SelectorConfig struct {
	MinDimension uint32 `toml:"min_dimension"`
	Strict       bool   `toml:"strict"`
}

type PoolConfig struct {
	MaxBufferSize       int `toml:"max_buffer_size"`
	MaxBuffersPerBucket int `toml:"max_buffers_per_bucket"`
	MaxRentSize         int `toml:"max_rent_size"`
}

type DecoderConfig struct {
	Workers int `toml:"workers"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type OutputConfig struct {
	Format       string `toml:"format"`
	Quality      int    `toml:"quality"`
	MaxDimension int    `toml:"max_dimension"`
}

// Config is the whole runtime configuration. Every section has a usable
// default, so a TOML file only needs the keys it changes.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Input    InputConfig    `toml:"input"`
	Selector SelectorConfig `toml:"selector"`
	Pool     PoolConfig     `toml:"pool"`
	Decoder  DecoderConfig  `toml:"decoder"`
	Jobs     JobsConfig     `toml:"jobs"`
	Output   OutputConfig   `toml:"output"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Input: InputConfig{
			MaxFileSize: 2 << 30,
			MaxDataSize: 1 << 30,
		},
		Selector: SelectorConfig{MinDimension: 512},
		Pool: PoolConfig{
			MaxBufferSize:       64 * 1024 * 1024,
			MaxBuffersPerBucket: 3,
			MaxRentSize:         1 << 30,
		},
		Decoder: DecoderConfig{Workers: runtime.NumCPU()},
		Jobs:    JobsConfig{Workers: 2, QueueSize: 4},
		Output:  OutputConfig{Format: "png", Quality: 95},
	}
}

// Parse overlays TOML data on the defaults. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown configuration keys:\n%s", strict.String())
		}
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a TOML file. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, err := core.ParseLogLevel(c.Log.Level)
	check(err == nil, "log.level %q is not a log level", c.Log.Level)
	check(c.Input.MaxFileSize >= 0, "input.max_file_size must be >= 0")
	check(c.Input.MaxDataSize >= 0, "input.max_data_size must be >= 0")
	check(c.Pool.MaxBufferSize >= 16, "pool.max_buffer_size must be >= 16")
	check(c.Pool.MaxBuffersPerBucket > 0, "pool.max_buffers_per_bucket must be > 0")
	check(c.Pool.MaxRentSize >= 0, "pool.max_rent_size must be >= 0")
	check(c.Decoder.Workers > 0, "decoder.workers must be > 0")
	check(c.Jobs.Workers > 0, "jobs.workers must be > 0")
	check(c.Jobs.QueueSize >= 0, "jobs.queue_size must be >= 0")

	format, err := imaging.ParseFormat(c.Output.Format)
	check(err == nil, "output.format %q is not supported", c.Output.Format)
	if format == imaging.FormatJPEG {
		check(c.Output.Quality >= 1 && c.Output.Quality <= 100, "output.quality must be within 1..100")
	}
	check(c.Output.MaxDimension >= 0, "output.max_dimension must be >= 0")

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Log.Level)
	if err != nil {
		return core.InfoLevel
	}
	return level
}
