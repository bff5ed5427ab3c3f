package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "30s" in YAML and JSON. Plain
// JSON numbers are taken as milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v) * time.Millisecond)
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", v)
		}
		*d = Duration(parsed)
		return nil
	}
	return errors.Errorf("invalid duration %s", data)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	// Port is used by the tcp and websocket transports.
	Port       int        `json:"port" yaml:"port"`
	Transport  string     `json:"transport" yaml:"transport"`
	Project    Project    `json:"project" yaml:"project"`
	Completion Completion `json:"completion" yaml:"completion"`
	Index      Index      `json:"index" yaml:"index"`
	Log        Log        `json:"log" yaml:"log"`
	Metrics    Metrics    `json:"metrics" yaml:"metrics"`
}

type Project struct {
	// InitTimeout bounds the wait for a project to initialize. Zero waits
	// for as long as the request lives.
	InitTimeout  Duration `json:"initTimeout" yaml:"initTimeout"`
	PollInterval Duration `json:"pollInterval" yaml:"pollInterval"`
}

type Completion struct {
	// CacheSize is how many completion responses stay resolvable.
	CacheSize int  `json:"cacheSize" yaml:"cacheSize"`
	Snippets  bool `json:"snippets" yaml:"snippets"`
}

type Index struct {
	Workers    int      `json:"workers" yaml:"workers"`
	Extensions []string `json:"extensions" yaml:"extensions"`
	// Database is the directory holding the index databases. Empty means
	// the user cache directory.
	Database string   `json:"database" yaml:"database"`
	Rescan   Duration `json:"rescan" yaml:"rescan"`
	Watch    bool     `json:"watch" yaml:"watch"`
}

type Log struct {
	Verbosity int `json:"verbosity" yaml:"verbosity"`
	// File receives the log instead of stderr when set.
	File string `json:"file" yaml:"file"`
}

type Metrics struct {
	// Address serves /metrics when set, e.g. "localhost:9464".
	Address string `json:"address" yaml:"address"`
}

const (
	TransportStdio     = "stdio"
	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"
)

var defaultConfig = Config{
	Port:      7998,
	Transport: TransportStdio,
	Project: Project{
		InitTimeout:  Duration(2 * time.Minute),
		PollInterval: Duration(time.Second),
	},
	Completion: Completion{
		CacheSize: 10,
		Snippets:  true,
	},
	Index: Index{
		Workers:    4,
		Extensions: []string{".go", ".java"},
		Rescan:     Duration(10 * time.Minute),
		Watch:      true,
	},
	Log: Log{
		Verbosity: 1,
	},
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := defaultConfig
	cfg.Index.Extensions = append([]string(nil), defaultConfig.Index.Extensions...)
	return cfg
}

// LoadFile reads a YAML file over the defaults. Keys missing from the
// file keep their default. An empty path yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Overlay returns c with the fields present in v replaced. v is any value
// that marshals to JSON, typically the client's initializationOptions.
func (c Config) Overlay(v any) (Config, error) {
	if v == nil {
		return c, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, errors.Wrap(err, "marshal options")
	}

	// only fields present in v will overwrite.
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal options into config")
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportTCP, TransportWebsocket:
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	if c.Transport != TransportStdio && (c.Port < 1 || c.Port > 65535) {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.Index.Workers < 1 {
		return errors.Errorf("index.workers must be positive, got %d", c.Index.Workers)
	}
	if c.Completion.CacheSize < 1 {
		return errors.Errorf("completion.cacheSize must be positive, got %d", c.Completion.CacheSize)
	}
	if c.Project.InitTimeout < 0 || c.Project.PollInterval < 0 {
		return errors.New("project durations must not be negative")
	}
	return nil
}
