package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateState points the remotes file at a fresh home directory.
func isolateState(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "")
	return home
}

// runRemote runs a remote subcommand and returns its output.
func runRemote(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func setAddFlags(t *testing.T, token, nats string) {
	t.Helper()
	require.NoError(t, remoteAddCmd.Flags().Set("token", token))
	require.NoError(t, remoteAddCmd.Flags().Set("nats", nats))
	t.Cleanup(func() {
		_ = remoteAddCmd.Flags().Set("token", "")
		_ = remoteAddCmd.Flags().Set("nats", "")
	})
}

func TestRemotesConfig_RoundTrip(t *testing.T) {
	isolateState(t)

	in := RemotesConfig{
		Active: "terminal-b",
		Remotes: map[string]Remote{
			"terminal-b": {URL: "https://gates.example.com", Token: "tok_abc", NATSURL: "nats://gates:4222"},
			"local":      {URL: "http://localhost:8080"},
		},
	}
	require.NoError(t, saveRemotesConfig(in))

	got, err := loadRemotesConfig()
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestRemotesConfig_MissingFile(t *testing.T) {
	isolateState(t)

	cfg, err := loadRemotesConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Active)
	assert.NotNil(t, cfg.Remotes)
	assert.Empty(t, cfg.Remotes)
}

func TestRemotesConfig_Location(t *testing.T) {
	home := isolateState(t)
	require.NoError(t, saveRemotesConfig(RemotesConfig{Remotes: map[string]Remote{}}))

	path := filepath.Join(home, ".local", "state", "gatekeep", "remotes.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dir, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dir.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	got, err := remoteConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(state, "gatekeep", "remotes.toml"), got)
}

func TestEditRemotes_FailureLeavesFile(t *testing.T) {
	isolateState(t)
	require.NoError(t, saveRemotesConfig(RemotesConfig{Active: "a", Remotes: map[string]Remote{"a": {URL: "http://a"}}}))

	boom := errors.New("boom")
	err := editRemotes(func(cfg *RemotesConfig) error {
		delete(cfg.Remotes, "a")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cfg, err := loadRemotesConfig()
	require.NoError(t, err)
	assert.Contains(t, cfg.Remotes, "a")
}

func TestRemote_Validate(t *testing.T) {
	for _, tc := range []struct {
		remote Remote
		ok     bool
	}{
		{Remote{URL: "http://localhost:8080"}, true},
		{Remote{URL: "https://gates.example.com", NATSURL: "nats://gates:4222"}, true},
		{Remote{URL: "https://gates.example.com", NATSURL: "tls://gates:4222"}, true},
		{Remote{URL: "localhost:8080"}, false},
		{Remote{URL: "ftp://gates.example.com"}, false},
		{Remote{URL: "http://"}, false},
		{Remote{URL: "http://gates", NATSURL: "http://gates:4222"}, false},
	} {
		err := tc.remote.validate()
		assert.Equal(t, tc.ok, err == nil, "%+v: %v", tc.remote, err)
	}
}

func TestRemoteLifecycle(t *testing.T) {
	isolateState(t)

	out, err := runRemote(t, remoteAddCmd, "local", "http://localhost:8080")
	require.NoError(t, err)
	assert.Contains(t, out, "added")
	out, err = runRemote(t, remoteAddCmd, "local", "http://localhost:9090")
	require.NoError(t, err)
	assert.Contains(t, out, "updated")

	setAddFlags(t, "", "nats://airport:4222")
	_, err = runRemote(t, remoteAddCmd, "airport", "https://a.example.com")
	require.NoError(t, err)

	_, err = runRemote(t, remoteUseCmd, "local")
	require.NoError(t, err)
	cfg, _ := loadRemotesConfig()
	assert.Equal(t, "local", cfg.Active)
	assert.Equal(t, "http://localhost:9090", cfg.Remotes["local"].URL)

	out, err = runRemote(t, remoteListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "* local")
	assert.Contains(t, out, "nats://airport:4222")
	assert.Contains(t, out, "polling", "a remote without NATS polls")
	assert.Less(t, strings.Index(out, "airport"), strings.Index(out, "local"), "list is sorted")

	out, err = runRemote(t, remoteShowCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "local (active)")
	assert.Contains(t, out, "localhost:9090")

	_, err = runRemote(t, remoteRemoveCmd, "local")
	require.NoError(t, err)
	cfg, _ = loadRemotesConfig()
	assert.NotContains(t, cfg.Remotes, "local")
	assert.Empty(t, cfg.Active, "removing the active remote clears it")
}

func TestRemoteTokenMasking(t *testing.T) {
	isolateState(t)
	setAddFlags(t, "tok_verylongsecret", "")

	_, err := runRemote(t, remoteAddCmd, "prod", "https://gates.example.com")
	require.NoError(t, err)
	_, err = runRemote(t, remoteUseCmd, "prod")
	require.NoError(t, err)

	out, err := runRemote(t, remoteListCmd)
	require.NoError(t, err)
	assert.NotContains(t, out, "tok_verylongsecret")
	assert.Contains(t, out, "tok_very...")

	out, err = runRemote(t, remoteShowCmd)
	require.NoError(t, err)
	assert.NotContains(t, out, "tok_verylongsecret")
	assert.Contains(t, out, "tok_very********")

	assert.Equal(t, "short", maskToken("short", "..."))
}

func TestRemoteErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"use unknown", remoteUseCmd, []string{"ghost"}},
		{"remove unknown", remoteRemoveCmd, []string{"ghost"}},
		{"show without active", remoteShowCmd, nil},
		{"add bad name", remoteAddCmd, []string{"gate.1", "http://localhost:8080"}},
		{"add bad url", remoteAddCmd, []string{"local", "localhost:8080"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			isolateState(t)
			_, err := runRemote(t, tc.cmd, tc.args...)
			assert.Error(t, err)
		})
	}
}
