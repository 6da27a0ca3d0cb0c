package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/mi"
	"github.com/dshills/dbgcore/internal/session"
)

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete dbgcore configuration.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log"`
	Session SessionConfig `toml:"session" yaml:"session"`
	GDB     GDBConfig     `toml:"gdb" yaml:"gdb"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
	Script  ScriptConfig  `toml:"script" yaml:"script"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `toml:"format" yaml:"format"`
	// Output lists zap output paths such as "stderr" or a file.
	Output []string `toml:"output" yaml:"output"`
	// Development enables zap's development mode.
	Development bool `toml:"development" yaml:"development"`
	// TraceMI logs every MI line sent and received at debug level.
	TraceMI bool `toml:"trace_mi" yaml:"trace_mi"`
}

// InitCommand is an MI command run at startup, with an optional command
// that undoes it.
type InitCommand struct {
	Command  string `toml:"command" yaml:"command"`
	Rollback string `toml:"rollback" yaml:"rollback"`
}

// SessionConfig configures a debugger session.
type SessionConfig struct {
	MaxInFlight     int           `toml:"max_in_flight" yaml:"max_in_flight"`
	OOBHistory      int           `toml:"oob_history" yaml:"oob_history"`
	Dialect         string        `toml:"dialect" yaml:"dialect"`
	Charset         string        `toml:"charset" yaml:"charset"`
	OwnershipChecks bool          `toml:"ownership_checks" yaml:"ownership_checks"`
	ShutdownTimeout Duration      `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Init            []InitCommand `toml:"init" yaml:"init"`
}

// GDBConfig says how to reach the debugger: a program started over its
// standard streams, or a TCP address when Address is set.
type GDBConfig struct {
	Path      string   `toml:"path" yaml:"path"`
	Args      []string `toml:"args" yaml:"args"`
	Address   string   `toml:"address" yaml:"address"`
	ExitGrace Duration `toml:"exit_grace" yaml:"exit_grace"`
}

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty
	// disables it.
	Addr      string `toml:"addr" yaml:"addr"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// ScriptConfig configures Lua event filters.
type ScriptConfig struct {
	// Filter is the path of a Lua file defining filter(record).
	Filter string `toml:"filter" yaml:"filter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sc := session.DefaultConfig()
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: []string{"stderr"},
		},
		Session: SessionConfig{
			MaxInFlight:     sc.MaxInFlight,
			OOBHistory:      sc.OOBHistory,
			Dialect:         sc.Dialect,
			Charset:         sc.Charset,
			OwnershipChecks: sc.OwnershipChecks,
			ShutdownTimeout: Duration(sc.ShutdownTimeout),
		},
		GDB: GDBConfig{
			Path:      "gdb",
			Args:      []string{"-q", "-nx"},
			ExitGrace: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Namespace: "dbgcore",
		},
	}
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level", "unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		invalid("log.format", "must be json or console, got %q", c.Log.Format)
	}

	if c.Session.MaxInFlight < 0 {
		invalid("session.max_in_flight", "must not be negative")
	}
	if c.Session.OOBHistory < 0 {
		invalid("session.oob_history", "must not be negative")
	}
	dialects := control.NewDialectRegistry().Available()
	if c.Session.Dialect != session.DialectAuto && !slices.Contains(dialects, c.Session.Dialect) {
		invalid("session.dialect", "must be %q or one of %v", session.DialectAuto, dialects)
	}
	if _, err := mi.NewParser(c.Session.Charset); err != nil {
		invalid("session.charset", "%v", err)
	}
	if c.Session.ShutdownTimeout < 0 {
		invalid("session.shutdown_timeout", "must not be negative")
	}
	for i, ic := range c.Session.Init {
		if _, err := mi.ParseCommand(ic.Command); err != nil {
			invalid(fmt.Sprintf("session.init[%d].command", i), "%v", err)
		}
		if ic.Rollback == "" {
			continue
		}
		if _, err := mi.ParseCommand(ic.Rollback); err != nil {
			invalid(fmt.Sprintf("session.init[%d].rollback", i), "%v", err)
		}
	}

	if c.GDB.Path == "" && c.GDB.Address == "" {
		invalid("gdb", "path or address is required")
	}
	return errors.Join(errs...)
}

// SessionConfig converts the session section for session.New.
func (c *Config) SessionConfig() session.Config {
	sc := session.Config{
		MaxInFlight:     c.Session.MaxInFlight,
		OOBHistory:      c.Session.OOBHistory,
		Dialect:         c.Session.Dialect,
		Charset:         c.Session.Charset,
		OwnershipChecks: c.Session.OwnershipChecks,
		ShutdownTimeout: c.Session.ShutdownTimeout.Std(),
		TraceMI:         c.Log.TraceMI,
	}
	for _, ic := range c.Session.Init {
		sc.Init = append(sc.Init, session.InitCommand{Command: ic.Command, Rollback: ic.Rollback})
	}
	return sc
}
