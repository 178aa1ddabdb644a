package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/baderkha/events-migrator/pkg/migrate/table/colmap"
	"github.com/cevaris/ordered_map"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// file names looked up in the working directory when no flag overrides them
const (
	DefaultConfigFile  = "migrator_config.yaml"
	DefaultMappingFile = "schema_mapping_config.yaml"
	DefaultEnvFile     = ".env"
)

// Loader : reads the configuration files from Fs.
// ${VAR} references are expanded from the process environment first, then from the env file.
type Loader struct {
	Fs        afero.Fs
	LookupEnv func(key string) (string, bool)
}

func NewLoader(fs afero.Fs) *Loader {
	return &Loader{Fs: fs, LookupEnv: os.LookupEnv}
}

// Load : reads, expands, decodes, defaults and validates the configuration.
// Any problem is returned as *Error holding every issue found.
func (l *Loader) Load(configPath string, mappingPath string, envPath string) (*Config, error) {
	env, err := l.readEnvFile(envPath)
	if err != nil {
		return nil, &Error{Err: err}
	}
	raw, err := afero.ReadFile(l.Fs, configPath)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("reading %s: %w", configPath, err)}
	}
	var cfg Config
	if err := yaml.Unmarshal(l.expand(raw, env), &cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("parsing %s: %w", configPath, err)}
	}
	cfg.ApplyDefaults()

	var errs error
	if err := cfg.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	m, err := l.loadMapping(mappingPath, env)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", mappingPath, err))
	} else {
		cfg.SchemaMapping = m
	}
	if errs != nil {
		return nil, &Error{Err: errs}
	}
	return &cfg, nil
}

func (l *Loader) readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := l.Fs.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()
	env, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return env, nil
}

func (l *Loader) expand(raw []byte, env map[string]string) []byte {
	return []byte(os.Expand(string(raw), func(key string) string {
		if key == "$" {
			return "$"
		}
		if l.LookupEnv != nil {
			if v, ok := l.LookupEnv(key); ok {
				return v
			}
		}
		return env[key]
	}))
}

// loadMapping : decodes the mapping document keeping the key order of the file
func (l *Loader) loadMapping(path string, env map[string]string) (*colmap.SchemaMap, error) {
	raw, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(l.expand(raw, env), &doc); err != nil {
		return nil, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, colmap.ErrEmpty
		}
		root = root.Content[0]
	}
	if root.Kind == 0 || root.Tag == "!!null" {
		return nil, colmap.ErrEmpty
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: schema mapping must be a mapping of source column to target column", root.Line)
	}
	om := ordered_map.NewOrderedMap()
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: schema mapping entries must be plain column names", k.Line)
		}
		if _, dup := om.Get(k.Value); dup {
			return nil, fmt.Errorf("line %d: source column %q is mapped twice", k.Line, k.Value)
		}
		om.Set(k.Value, v.Value)
	}
	return colmap.FromOrderedMap(om)
}
