package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

// Config is read from the file passed via --log-config.
//
//	defaultLevel: info
//	loggers:
//	  processing: debug
//	  snapshot.nats: debug
type Config struct {
	DefaultLevel string            `yaml:"defaultLevel"`
	Loggers      map[string]string `yaml:"loggers"`
}

func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse log config: %w", err)
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = "info"
	}
	return cfg, nil
}

// Rules converts the config into zapfilter rules.
// Named loggers may only be more verbose than the default level.
func (c *Config) Rules() (string, error) {
	if _, err := ParseLevel(c.DefaultLevel); err != nil {
		return "", err
	}
	rules := []string{fmt.Sprintf("%s+:*", c.DefaultLevel)}
	names := make([]string, 0, len(c.Loggers))
	for name := range c.Loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lvl := strings.ToLower(c.Loggers[name])
		if _, err := ParseLevel(lvl); err != nil {
			return "", fmt.Errorf("logger %s: %w", name, err)
		}
		rules = append(rules,
			fmt.Sprintf("%s+:%s", lvl, name),
			fmt.Sprintf("%s+:%s.*", lvl, name))
	}
	return strings.Join(rules, " "), nil
}

// NewWithConfig creates a logger that applies the per-logger rules of cfg.
// format is either "json" or anything else for console output.
//
//nolint:whitespace // can't make both editor and linter happy
func NewWithConfig(
	cfg *Config,
	format string,
	writer io.Writer,
	opts ...Option,
) (*Logger, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	filter, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	var base *Logger
	if format == "json" {
		base = New(writer, DebugLevel)
	} else {
		base = DevLogger(writer, DebugLevel)
	}
	z := zap.New(zapfilter.NewFilteringCore(base.l.Core(), filter), opts...)
	return &Logger{l: z, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}, nil
}
