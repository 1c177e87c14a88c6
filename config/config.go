/*
	Helpers for loading contextual config.

	Config for lspws means "things that are the host machine operator's concerns":
	where the bare repositories live, where workspaces get checked out,
	and which language server to put behind the proxy.
	Repository uris and revisions are parameters of calls, not config.

	Precedence, lowest first: built-in defaults, environment variables,
	the config file, and finally command line flags (applied by the caller).
*/
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
)

/*
	Return the home-base path prefix that is the default root for all other lspws paths.

	The default value is `"/var/lib/lspws"`;
	this can be overriden by the `LSPWS_BASE` environment variable.
*/
func GetBasePath() fs.AbsolutePath {
	return envPath("LSPWS_BASE", func() string { return "/var/lib/lspws" })
}

/*
	Return the path under which bare repositories are found by repository uri.

	The default value is `"$LSPWS_BASE/repos"`;
	this can be overriden by the `LSPWS_REPOS` environment variable.
*/
func GetRepoBasePath() fs.AbsolutePath {
	return envPath("LSPWS_REPOS", func() string { return GetBasePath().Join(fs.MustRelPath("repos")).String() })
}

/*
	Return the path under which workspaces are checked out.

	The default value is `"$LSPWS_BASE/workspace"`;
	this can be overriden by the `LSPWS_WORKSPACES` environment variable.
*/
func GetWorkspaceBasePath() fs.AbsolutePath {
	return envPath("LSPWS_WORKSPACES", func() string { return GetBasePath().Join(fs.MustRelPath("workspace")).String() })
}

func envPath(key string, dflt func() string) fs.AbsolutePath {
	pth := os.Getenv(key)
	if pth == "" {
		pth = dflt()
	}
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return fs.MustAbsolutePath(pth)
}

/*
	Config as read from a config file.

	The file is JSON, with comments and trailing commas allowed.
	Empty fields keep whatever the environment said.
*/
type Config struct {
	Repos      string `json:"repos,omitempty"`      // Root of the bare repositories.
	Workspaces string `json:"workspaces,omitempty"` // Root of the workspaces.
	Server     string `json:"server,omitempty"`     // Language server command line, shell quoted.
}

/*
	Return the config seen from the environment alone.
*/
func FromEnv() Config {
	return Config{
		Repos:      GetRepoBasePath().String(),
		Workspaces: GetWorkspaceBasePath().String(),
		Server:     os.Getenv("LSPWS_SERVER"),
	}
}

/*
	Load the environment config, then overlay a config file on it.
	A blank path loads the environment config only.

	May return errors of category:

	  - `lspws.ErrUsage` -- if the file is missing or unparsable
*/
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, Errorf(lspws.ErrUsage, "cannot read config file: %s", err)
	}
	var file Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return cfg, Errorf(lspws.ErrUsage, "cannot parse config file %q: %s", path, err)
	}
	cfg.Overlay(file)
	// Relative roots in the file are relative to the file.
	dir := filepath.Dir(path)
	if file.Repos != "" && !filepath.IsAbs(cfg.Repos) {
		cfg.Repos = filepath.Join(dir, cfg.Repos)
	}
	if file.Workspaces != "" && !filepath.IsAbs(cfg.Workspaces) {
		cfg.Workspaces = filepath.Join(dir, cfg.Workspaces)
	}
	return cfg, nil
}

/*
	Replace fields with any non-empty fields of the other config.
*/
func (c *Config) Overlay(other Config) {
	if other.Repos != "" {
		c.Repos = other.Repos
	}
	if other.Workspaces != "" {
		c.Workspaces = other.Workspaces
	}
	if other.Server != "" {
		c.Server = other.Server
	}
}

/*
	Return the repository and workspace roots as absolute paths.

	May return errors of category:

	  - `lspws.ErrUsage` -- if either root is blank
*/
func (c Config) Roots() (repos fs.AbsolutePath, workspaces fs.AbsolutePath, err error) {
	if c.Repos == "" || c.Workspaces == "" {
		return fs.AbsolutePath{}, fs.AbsolutePath{}, Errorf(lspws.ErrUsage, "repository and workspace roots must both be set")
	}
	r, err := filepath.Abs(c.Repos)
	if err != nil {
		return fs.AbsolutePath{}, fs.AbsolutePath{}, Errorf(lspws.ErrUsage, "invalid repository root: %s", err)
	}
	w, err := filepath.Abs(c.Workspaces)
	if err != nil {
		return fs.AbsolutePath{}, fs.AbsolutePath{}, Errorf(lspws.ErrUsage, "invalid workspace root: %s", err)
	}
	return fs.MustAbsolutePath(r), fs.MustAbsolutePath(w), nil
}
