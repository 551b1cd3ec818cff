package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".idpforge"

// Paths are the per-user locations idpforge keeps its own state in. Generated
// platforms go to output.dir, not here.
type Paths struct {
	Base   string // ~/.idpforge
	Config string // ~/.idpforge/config.yaml
	Data   string // run history
	Logs   string
	DB     string // default history database
}

// ResolvePaths computes all standard paths from the home directory.
// If IDPFORGE_HOME is set, it overrides the default base directory, and
// IDPFORGE_CONFIG overrides the config file location.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("IDPFORGE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	p := Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}
	p.DB = filepath.Join(p.Data, "idpforge.db")
	if v := os.Getenv("IDPFORGE_CONFIG"); v != "" {
		p.Config = v
	}
	return p, nil
}

// EnsureDirs creates the state directories, private to the user since the
// history holds task text and generated configs.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return &ConfigError{Path: d, Message: "creating state directory", Err: err}
		}
	}
	return nil
}

// DBPath returns the store path from config, or the default under Data.
func (p Paths) DBPath(cfg *Config) string {
	if cfg != nil && cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return p.DB
}
