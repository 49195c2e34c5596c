package main

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the on-disk list of gatekeep servers an operator can
// point the CLI at, plus the one currently in use.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is one gatekeep server: its HTTP API, an optional bearer token and
// an optional NATS URL for the live change feed.
type Remote struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
}

func (r Remote) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server URL %q must be an absolute http(s) URL", r.URL)
	}
	if r.NATSURL == "" {
		return nil
	}
	n, err := url.Parse(r.NATSURL)
	if err != nil || (n.Scheme != "nats" && n.Scheme != "tls") || n.Host == "" {
		return fmt.Errorf("NATS URL %q must use nats:// or tls://", r.NATSURL)
	}
	return nil
}

// stateDir honours XDG_STATE_HOME and falls back to ~/.local/state.
func stateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "gatekeep"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "gatekeep"), nil
}

func remoteConfigPath() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

func loadRemotesConfig() (RemotesConfig, error) {
	cfg := RemotesConfig{Remotes: map[string]Remote{}}
	path, err := remoteConfigPath()
	if err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// saveRemotesConfig replaces the file atomically so a crash never leaves a
// half-written token file behind.
func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding remotes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// editRemotes loads the file, lets fn change it and saves the result. The
// file is left untouched when fn fails.
func editRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

// activeRemote is read once per process; flag defaults need it at init.
var activeRemote = sync.OnceValue(func() Remote {
	cfg, err := loadRemotesConfig()
	if err != nil || cfg.Active == "" {
		return Remote{}
	}
	return cfg.Remotes[cfg.Active]
})

func defaultHTTPURL() string {
	return cmp.Or(os.Getenv("GATEKEEP_HTTP_URL"), activeRemote().URL, "http://localhost:8080")
}

func defaultToken() string {
	return cmp.Or(os.Getenv("GATEKEEP_TOKEN"), activeRemote().Token)
}

func defaultNATSURL() string {
	return cmp.Or(os.Getenv("GATEKEEP_NATS_URL"), activeRemote().NATSURL)
}
