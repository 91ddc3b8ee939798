package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func setMemoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CHARLA_STORE_DRIVER", "memory")
	t.Setenv("CHARLA_GLOBAL_DATA_DIR", t.TempDir())
	t.Setenv("CHARLA_SESSION_EMAIL", "ana@example.com")
	t.Setenv("CHARLA_SESSION_NAME", "Ana")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandSet(t *testing.T) {
	cmd := newRootCmd("test")
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"register", "contacts", "send", "list", "open", "serve"} {
		require.True(t, names[want], "missing command %q", want)
	}
}

func TestRegister(t *testing.T) {
	setMemoryEnv(t)
	out, err := runCommand(t, "register", "Ana")
	require.NoError(t, err)
	require.Contains(t, out, "Registered ana@example.com")
}

func TestRegister_RequiresName(t *testing.T) {
	setMemoryEnv(t)
	_, err := runCommand(t, "register")
	require.Error(t, err)
}

func TestRegister_NoSession(t *testing.T) {
	t.Setenv("CHARLA_STORE_DRIVER", "memory")
	t.Setenv("CHARLA_GLOBAL_DATA_DIR", t.TempDir())
	t.Setenv("CHARLA_SESSION_EMAIL", "")
	_, err := runCommand(t, "register", "Ana")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--user")
}

func TestListEmpty(t *testing.T) {
	setMemoryEnv(t)
	out, err := runCommand(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "No conversations yet.")
}

func TestContactsAdd_UnknownUser(t *testing.T) {
	setMemoryEnv(t)
	_, err := runCommand(t, "contacts", "add", "ghost@example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no registered user")
}

func TestOpen_NoConversation(t *testing.T) {
	setMemoryEnv(t)
	_, err := runCommand(t, "open", "bruno@example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "contacts add")
}
