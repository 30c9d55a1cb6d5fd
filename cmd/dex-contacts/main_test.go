package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const janeLine = "Met [Jane Doe](https://getdex.com/contacts/c1) today"

type cliEnv struct {
	vault   string
	config  string
	creates atomic.Int32
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	e := &cliEnv{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts":
			_, _ = w.Write([]byte(`{"contacts":[{"id":"c1","first_name":"Jane","last_name":"Doe"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/timeline_items":
			e.creates.Add(1)
			_, _ = w.Write([]byte(`{"insert_timeline_items_one":{"id":"m1"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e.vault = filepath.Join(dir, "Vault")
	require.NoError(t, os.MkdirAll(e.vault, 0o755))

	e.config = filepath.Join(dir, "config.yaml")
	cfg := "vault:\n  path: " + e.vault + "\n" +
		"dex:\n  api_key: secret\n  base_url: " + srv.URL + "\n" +
		"sqlite:\n  path: " + filepath.Join(dir, "index.db") + "\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

func (e *cliEnv) write(t *testing.T, rel, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.vault, rel), []byte(text), 0o644))
}

func (e *cliEnv) read(t *testing.T, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(e.vault, rel))
	require.NoError(t, err)
	return string(b)
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })

	argv := append([]string{"dex-contacts", "--config", e.config}, args...)
	err := newCommand().Run(context.Background(), argv)
	return out.String(), err
}

func TestSyncCommand_Line(t *testing.T) {
	e := newCLIEnv(t)
	e.write(t, "a.md", janeLine+"\n  talked about the launch\n")

	out, err := e.run(t, "sync", "--line", "0", "a.md")
	require.NoError(t, err)
	assert.Contains(t, out, `"memo_id": "m1"`)
	assert.Equal(t, int32(1), e.creates.Load())
	assert.Contains(t, e.read(t, "a.md"), "%%dex:contact-id=c1,memo-id=m1,hash=")
}

func TestSyncCommand_RequiresPath(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "note path is required")
	assert.Zero(t, e.creates.Load())
}

func TestStripCommand_DryRun(t *testing.T) {
	e := newCLIEnv(t)
	note := janeLine + " %%dex:contact-id=c1,memo-id=m1,hash=abc%%\n  follow up\n"
	e.write(t, "b.md", note)

	out, err := e.run(t, "strip", "--dry-run", "b.md")
	require.NoError(t, err)
	assert.Contains(t, out, "@@")
	assert.Contains(t, out, "dex:contact-id=c1")
	assert.Equal(t, note, e.read(t, "b.md"), "dry run must not write")
}

func TestStripCommand_DryRunNeedsPath(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "strip", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dry-run needs a note path")
}

func TestStripCommand_WritesNote(t *testing.T) {
	e := newCLIEnv(t)
	e.write(t, "b.md", janeLine+" %%dex:contact-id=c1,memo-id=m1,hash=abc%%\n")

	_, err := e.run(t, "strip", "b.md")
	require.NoError(t, err)
	assert.NotContains(t, e.read(t, "b.md"), "%%dex:")
}
