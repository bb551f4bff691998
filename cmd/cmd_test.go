package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fandom-data/internal/app"
	"github.com/JakeFAU/fandom-data/internal/config"
	collyfetcher "github.com/JakeFAU/fandom-data/internal/fetcher/colly"
	blevestore "github.com/JakeFAU/fandom-data/internal/store/bleve"
)

type archiveServer struct {
	mu       sync.Mutex
	pages    map[string]string
	failPage string
	robots   string
	visited  []string
}

func newArchiveServer(t *testing.T) (*archiveServer, *httptest.Server) {
	t.Helper()
	fixtures := filepath.Join("..", "internal", "scrape", "testdata")
	a := &archiveServer{pages: map[string]string{
		"1": filepath.Join(fixtures, "search.html"),
		"2": filepath.Join(fixtures, "search_last.html"),
	}}
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)
	return a, srv
}

func (a *archiveServer) failOn(page string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failPage = page
}

func (a *archiveServer) disallowAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.robots = "User-agent: *\nDisallow: /\n"
}

func (a *archiveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		a.mu.Lock()
		robots := a.robots
		a.mu.Unlock()
		if robots == "" {
			robots = "User-agent: *\nAllow: /\n"
		}
		_, _ = w.Write([]byte(robots))
		return
	}
	page := r.URL.Query().Get("page")
	a.mu.Lock()
	a.visited = append(a.visited, page)
	fail := page == a.failPage
	a.mu.Unlock()
	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	body, err := os.ReadFile(a.pages[page])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(body)
}

func execute(t *testing.T, cmdArgs ...string) (string, error) {
	t.Helper()
	var cmd = NewFetchCommand()
	if cmdArgs[0] == "index" {
		cmd = NewIndexCommand()
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(cmdArgs[1:])
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchWritesWorksToStdout(t *testing.T) {
	_, srv := newArchiveServer(t)
	out, err := execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"id":"101"`)
	assert.Contains(t, lines[3], `"id":"201"`)
}

func TestFetchHonorsCount(t *testing.T) {
	archive, srv := newArchiveServer(t)
	out, err := execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--count", "2", "--log-level", "error")
	require.NoError(t, err)

	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	archive.mu.Lock()
	defer archive.mu.Unlock()
	assert.Equal(t, []string{"1"}, archive.visited)
}

func TestFetchAbortNamesResumePage(t *testing.T) {
	archive, srv := newArchiveServer(t)
	archive.failOn("2")
	output := filepath.Join(t.TempDir(), "works.jsonl")

	_, err := execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--output", output, "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume with --start 2")

	data, readErr := os.ReadFile(output)
	require.NoError(t, readErr)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	archive.failOn("")
	resumed := filepath.Join(t.TempDir(), "rest.jsonl")
	_, err = execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--start", "2", "--output", resumed, "--log-level", "error")
	require.NoError(t, err)
	rest, readErr := os.ReadFile(resumed)
	require.NoError(t, readErr)

	fresh, err := execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, fresh, string(data)+string(rest))
}

func TestFetchBlockedByRobotsHasNoResumeHint(t *testing.T) {
	archive, srv := newArchiveServer(t)
	archive.disallowAll()

	out, err := execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--log-level", "error")
	require.Error(t, err)
	assert.ErrorIs(t, err, collyfetcher.ErrRobotsDisallowed)
	assert.Contains(t, err.Error(), "robots.txt disallows")
	assert.NotContains(t, err.Error(), "resume with")
	assert.Empty(t, out)

	archive.mu.Lock()
	assert.Empty(t, archive.visited)
	archive.mu.Unlock()

	out, err = execute(t, "fetch", "--endpoint", srv.URL, "--interval", "0", "--respect-robots=false", "--log-level", "error")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestFetchRejectsInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "fetch", "-n", "0", "--log-level", "error")
	assert.ErrorContains(t, err, "fetch.workers")
}

func TestIndexLoadsFileIntoBleve(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "works.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(strings.Join([]string{
		`{"id":"1","title":"Appa's Lost Days","kudos":10}`,
		`{"id":2,"title":"Zuko Alone"}`,
		`{"id":"3","title":`,
		``,
		`{"id":"1","title":"Appa's Lost Days (revised)","kudos":11}`,
	}, "\n")), 0o600))
	bleveDir := filepath.Join(dir, "works.bleve")

	for range 2 {
		_, err := execute(t, "index", "--backend", "bleve", "--bleve-path", bleveDir,
			"--input", input, "--chunk-size", "2", "--log-level", "error")
		require.NoError(t, err)
	}

	st, err := blevestore.Open(bleveDir)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	doc, err := st.FindByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Appa's Lost Days (revised)", doc.Fields["title"])
}

func TestIndexStrictAborts(t *testing.T) {
	input := filepath.Join(t.TempDir(), "works.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("{\"id\":\"1\"}\nnot json\n"), 0o600))

	_, err := execute(t, "index", "--backend", "bleve", "--input", input, "--strict", "--log-level", "error")
	assert.ErrorContains(t, err, "line 2")
}

func TestIndexRequiresInput(t *testing.T) {
	_, err := execute(t, "index", "--backend", "bleve", "--log-level", "error")
	assert.ErrorContains(t, err, "index.input")
}

func TestAppInitFailureIsReported(t *testing.T) {
	orig := newApp
	newApp = func(config.Config) (*app.App, error) {
		return nil, errors.New("no logger for you")
	}
	defer func() { newApp = orig }()

	_, err := execute(t, "fetch")
	assert.ErrorContains(t, err, "failed to initialize application services")
}
