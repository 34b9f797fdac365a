package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command line against a fresh data directory holding
// jobs.json and returns what the command printed.
func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	queryTrace, queryJSON, queryRender, queryStdin = false, false, false, false
	viewTrigger, viewTriggerConfig, viewDisabled = "manual", "", false
	approveReject = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "config.yaml"), "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func newDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONDORVIEW_DATA_DIR", dir)
	body := `[["user","state","jobs"],["alice","run",3],["bob","idle",7],["alice","idle",1]]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.json"), []byte(body), 0644))
	return dir
}

func TestCSVCommand(t *testing.T) {
	dir := newDataDir(t)
	out, err := execute(t, dir, "", "csv", "url=jobs.json", "group=user;jobs", "order=-jobs")
	require.NoError(t, err)
	assert.Equal(t, "user,jobs\nbob,7\nalice,4\n", out)
}

func TestCSVCommand_Stdin(t *testing.T) {
	dir := newDataDir(t)
	out, err := execute(t, dir, `jsonp([["user","jobs"],["carol",2]]);`, "csv", "--stdin", "limit=1")
	require.NoError(t, err)
	assert.Equal(t, "user,jobs\ncarol,2\n", out)
}

func TestQueryCommand_Table(t *testing.T) {
	dir := newDataDir(t)
	out, err := execute(t, dir, "", "query", "url=jobs.json&filter=state=run")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "bob")
	assert.Contains(t, out, "1 rows")
}

func TestQueryCommand_Error(t *testing.T) {
	dir := newDataDir(t)
	_, err := execute(t, dir, "", "query", "url=jobs.json", "order=nosuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order=nosuch")
}

func TestViewCommands(t *testing.T) {
	dir := newDataDir(t)

	out, err := execute(t, dir, "", "view", "save", "idle", "url=jobs.json", "filter=state=idle")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved view idle")

	out, err = execute(t, dir, "", "view", "run", "idle")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")

	out, err = execute(t, dir, "", "view", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "url=jobs.json&filter=state=idle")
	assert.Contains(t, out, "success")

	out, err = execute(t, dir, "", "view", "logs", "idle")
	require.NoError(t, err)
	assert.Contains(t, out, "manual")

	_, err = execute(t, dir, "", "view", "delete", "idle")
	require.NoError(t, err)
	_, err = execute(t, dir, "", "view", "run", "idle")
	assert.Error(t, err)
}

func TestApproveCommand_Unknown(t *testing.T) {
	dir := newDataDir(t)
	out, err := execute(t, dir, "", "approve")
	require.NoError(t, err)
	assert.Contains(t, out, "TOOL")

	_, err = execute(t, dir, "", "approve", "missing", "--reject")
	assert.Error(t, err)
}
