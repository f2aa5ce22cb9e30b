package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the command tree with the given args against a shared
// temp database and returns stdout.
func runCmd(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", db, "--config-dir", filepath.Dir(db)}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func writePayload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAddListStatusFlow(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "cat.yaml", "name: Hand Tools\n")

	out, err := runCmd(t, db, "add", "category", "-f", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "queued #1: create category/tmp-")

	out, err = runCmd(t, db, "list", "category")
	require.NoError(t, err)
	assert.Contains(t, out, "Hand Tools")
	assert.Contains(t, out, "pending")

	out, err = runCmd(t, db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 1")
}

func TestAddRejectsInvalidPayload(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "bad.yaml", "name: \"\"\n")

	_, err := runCmd(t, db, "add", "category", "-f", payload)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAddUnknownKind(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "x.yaml", "name: X\n")

	_, err := runCmd(t, db, "add", "gadget", "-f", payload)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncAgainstBackend(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "cat.yaml", "name: Fasteners\n")

	var created int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		created++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "cat-" + strconv.Itoa(created),
			"data": map[string]any{"name": "Fasteners"},
		})
	}))
	defer srv.Close()

	_, err := runCmd(t, db, "add", "category", "-f", payload)
	require.NoError(t, err)

	out, err := runCmd(t, db, "--api", srv.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 1, failed 0, pending 0")
	assert.Equal(t, 1, created)

	// The entity now lists under its real id, confirmed.
	out, err = runCmd(t, db, "list", "category")
	require.NoError(t, err)
	assert.Contains(t, out, "cat-1")
	assert.Contains(t, out, "synced")
}

func TestSyncReportsFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "loc.yaml", "name: Shed\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"message": "duplicate location name"})
	}))
	defer srv.Close()

	_, err := runCmd(t, db, "add", "location", "-f", payload)
	require.NoError(t, err)

	_, err = runCmd(t, db, "--api", srv.URL, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := runCmd(t, db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "duplicate location name")
}

func TestRetryAndDiscardCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "loc.yaml", "name: Attic\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"message": "nope"})
	}))
	defer srv.Close()

	_, err := runCmd(t, db, "add", "location", "-f", payload)
	require.NoError(t, err)
	_, err = runCmd(t, db, "--api", srv.URL, "sync")
	require.Error(t, err)

	out, err := runCmd(t, db, "retry", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "returned to queue")

	// Fail it again, then discard.
	_, err = runCmd(t, db, "--api", srv.URL, "sync")
	require.Error(t, err)
	_, err = runCmd(t, db, "discard", "1")
	require.NoError(t, err)

	out, err = runCmd(t, db, "list", "location")
	require.NoError(t, err)
	assert.NotContains(t, out, "Attic")
}

func TestJSONOutput(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stockroom.db")
	payload := writePayload(t, dir, "b.yaml", "name: Sam\n")

	out, err := runCmd(t, db, "--format", "json", "add", "borrower", "-f", payload)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}
