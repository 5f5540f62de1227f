package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the set of named daemons the CLI can talk to, stored as
// ~/.local/state/walletd/remotes.toml.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is one daemon's endpoints and credentials.
type Remote struct {
	URL      string `toml:"url"`
	GRPCAddr string `toml:"grpc_addr,omitempty"`
	Token    string `toml:"token,omitempty"`
	NATSURL  string `toml:"nats_url,omitempty"`
}

func remoteConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "walletd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

// loadRemotesConfig reads the remotes file. A missing file is an empty
// config.
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

// save writes the config readable by the owner only; tokens live in it.
func (c RemotesConfig) save() error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c RemotesConfig) lookup(name string) (Remote, error) {
	r, ok := c.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

// remove deletes name, clearing it as the active remote if it was.
func (c *RemotesConfig) remove(name string) error {
	if _, err := c.lookup(name); err != nil {
		return err
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

func (c *RemotesConfig) use(name string) error {
	if _, err := c.lookup(name); err != nil {
		return err
	}
	c.Active = name
	return nil
}

func (c RemotesConfig) names() []string {
	out := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// writeTable lists remotes with the active one starred and tokens cut to
// their first 8 characters.
func (c RemotesConfig) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tURL\tGRPC\tTOKEN")
	for _, name := range c.names() {
		r := c.Remotes[name]
		marker := "  "
		if name == c.Active {
			marker = "* "
		}
		token := r.Token
		if len(token) > 8 {
			token = token[:8] + "..."
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", marker, name, r.URL, r.GRPCAddr, token)
	}
	return tw.Flush()
}

// writeDetails prints one remote with everything past the token's first 8
// characters masked.
func (r Remote) writeDetails(w io.Writer, name string, active bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	suffix := ""
	if active {
		suffix = " (active)"
	}
	fmt.Fprintf(tw, "name:\t%s%s\n", name, suffix)
	fmt.Fprintf(tw, "url:\t%s\n", r.URL)
	for _, kv := range [][2]string{{"grpc_addr", r.GRPCAddr}, {"token", maskToken(r.Token)}, {"nats_url", r.NATSURL}} {
		if kv[1] != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
		}
	}
	return tw.Flush()
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + strings.Repeat("*", len(token)-8)
}

// The active remote seeds flag defaults, so it is read once per process.
var (
	activeRemoteOnce sync.Once
	activeRemote     Remote
)

func currentRemote() Remote {
	activeRemoteOnce.Do(func() {
		cfg, err := loadRemotesConfig()
		if err != nil || cfg.Active == "" {
			return
		}
		activeRemote = cfg.Remotes[cfg.Active]
	})
	return activeRemote
}

func activeRemoteURL() string      { return currentRemote().URL }
func activeRemoteGRPCAddr() string { return currentRemote().GRPCAddr }
func activeRemoteToken() string    { return currentRemote().Token }
func activeRemoteNATSURL() string  { return currentRemote().NATSURL }
