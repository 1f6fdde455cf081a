package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/pdftest"
	"github.com/hyperjump/kiku/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
embedding:
  provider: mock
  dimensions: 16
generation:
  provider: static
rag:
  chunk_size: 60
  chunk_overlap: 10
  retrieval_k: 2
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handbook.pdf")
	content := pdftest.Build(
		"Vacation policy: employees receive twenty days of paid leave each year.",
		"Expense policy: receipts are required for every purchase above fifty dollars.",
	)
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// startServer runs the HTTP API over in-memory components built from the test config.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.Load(writeConfig(t))
	require.NoError(t, err)
	components, err := initializeComponents(cfg, nil, false)
	require.NoError(t, err)
	t.Cleanup(components.Close)
	srv := server.NewServer(components.Service, &cfg.Server, nil, nil, "", nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-version-1.0.0"
	defer func() { version = original }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kiku version test-version-1.0.0")
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "how many days", joinArgs([]string{"how", "many", "days"}))
	assert.Equal(t, "how many days", joinArgs([]string{" how many days "}))
	assert.Equal(t, "", joinArgs(nil))
}

func TestLoadConfig_explicitPath(t *testing.T) {
	path := writeConfig(t)
	cfg, resolved, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 60, cfg.RAG.ChunkSize)
}

func TestLoadConfig_defaultPrefersWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), resolved)
	assert.Equal(t, 16, cfg.Embedding.Dimensions)
}

func TestLoadConfig_defaultMissingUsesDefaults(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists at the default path")
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, "static", cfg.Generation.Provider)
	assert.Equal(t, config.DefaultChunkSize, cfg.RAG.ChunkSize)
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestAskCmd_answersFromPDF(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "--output", "json",
		"ask", writePDF(t), "how", "many", "vacation", "days?")
	require.NoError(t, err)

	var answer models.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "how many vacation days?", answer.Question)
	assert.Equal(t, models.OutcomeAnswered, answer.Outcome)
	assert.NotEmpty(t, answer.Answer)
	assert.NotEmpty(t, answer.Sources)
}

func TestAskCmd_rejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "--output", "yaml", "ask", writePDF(t), "question")
	assert.Error(t, err)
}

func TestAskCmd_unreadablePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0600))

	_, err := execute(t, "--config", writeConfig(t), "ask", path, "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnreadableDocument), "got %v", err)
}

func TestClientCommands_roundTrip(t *testing.T) {
	ts := startServer(t)

	out, err := execute(t, "--server", ts.URL, "--output", "json", "upload", writePDF(t))
	require.NoError(t, err)
	var doc models.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Equal(t, models.StateReady, doc.State)
	assert.Equal(t, "handbook.pdf", doc.Filename)

	out, err = execute(t, "--server", ts.URL, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, doc.ID)

	out, err = execute(t, "--server", ts.URL, "chat", doc.ID, "what", "needs", "a", "receipt?")
	require.NoError(t, err)
	assert.Contains(t, out, "Sources")

	out, err = execute(t, "--server", ts.URL, "history", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Q: what needs a receipt?")

	out, err = execute(t, "--server", ts.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "documents:          1")

	out, err = execute(t, "--server", ts.URL, "delete", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Document deleted: "+doc.ID)

	_, err = execute(t, "--server", ts.URL, "get", doc.ID)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, models.KindNotFound, apiErr.Kind)
}

func TestWatchCmd_withoutInbox(t *testing.T) {
	ts := startServer(t)

	_, err := execute(t, "--server", ts.URL, "watch", "list")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotImplemented, apiErr.Status)
}

func TestDecodeAPIError_plainBody(t *testing.T) {
	err := decodeAPIError(http.StatusBadGateway, []byte("upstream down\n"))
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, "server returned 502: upstream down", err.Error())
}
