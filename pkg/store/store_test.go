package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	m.Run()
}

// fakeRepo is an in-memory contents API: GET/PUT/DELETE under
// /repos/{owner}/{repo}/contents/{path} with SHA checking.
type fakeRepo struct {
	mu    sync.Mutex
	files map[string]string // path -> content
	shas  map[string]string
	seq   int

	putCount  int
	getCount  int
	failNext  int // next N requests answer 500
	forbidden bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[string]string), shas: make(map[string]string)}
}

func (f *fakeRepo) set(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.files[path] = content
	f.shas[path] = "sha-" + path + "-" + string(rune('a'+f.seq))
}

func (f *fakeRepo) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		if f.forbidden {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if f.failNext > 0 {
			f.failNext--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/repos/acme/pictures/contents/")
		switch r.Method {
		case http.MethodGet:
			f.getCount++
			content, ok := f.files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"sha":     f.shas[path],
				"content": base64.StdEncoding.EncodeToString([]byte(content)),
			})
		case http.MethodPut:
			f.putCount++
			var body struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if existing, ok := f.shas[path]; ok && body.SHA != existing {
				w.WriteHeader(http.StatusConflict)
				return
			}
			raw, _ := base64.StdEncoding.DecodeString(body.Content)
			f.seq++
			f.files[path] = string(raw)
			f.shas[path] = "sha-" + path + "-" + string(rune('a'+f.seq))
			json.NewEncoder(w).Encode(map[string]string{"sha": f.shas[path]})
		case http.MethodDelete:
			delete(f.files, path)
			delete(f.shas, path)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestClient(t *testing.T, repo *fakeRepo) *Client {
	t.Helper()
	srv := httptest.NewServer(repo.handler())
	t.Cleanup(srv.Close)
	c := NewClient("testtoken", "acme", "pictures", "main")
	c.SetBaseURL(srv.URL)
	return c
}

func TestGetDecodesContent(t *testing.T) {
	repo := newFakeRepo()
	repo.set("hello.json", `{"a":1}`)
	c := newTestClient(t, repo)

	data, sha, err := c.Get(context.Background(), "hello.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
	assert.NotEmpty(t, sha)
}

func TestGetNotFound(t *testing.T) {
	c := newTestClient(t, newFakeRepo())
	_, _, err := c.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRetriesServerErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.set("x.json", "x")
	repo.failNext = 2
	c := newTestClient(t, repo)

	data, _, err := c.Get(context.Background(), "x.json")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestPutCreatesAndUpdates(t *testing.T) {
	repo := newFakeRepo()
	c := newTestClient(t, repo)

	require.NoError(t, c.Put(context.Background(), "new.json", []byte("v1"), "add"))
	data, _, err := c.Get(context.Background(), "new.json")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, c.Put(context.Background(), "new.json", []byte("v2"), "update"))
	data, _, err = c.Get(context.Background(), "new.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestPutRecoversFromConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.set("c.json", "old")
	c := newTestClient(t, repo)

	// Move the remote SHA between the client's stat and its put.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && repo.putCount == 0 {
			repo.set("c.json", "raced")
		}
		repo.handler().ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	c.SetBaseURL(srv.URL)

	require.NoError(t, c.Put(context.Background(), "c.json", []byte("mine"), "write"))
	data, _, err := c.Get(context.Background(), "c.json")
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestRawURL(t *testing.T) {
	c := NewClient("tok", "acme", "pictures", "main")
	assert.Equal(t,
		"https://raw.githubusercontent.com/acme/pictures/main/abc.png",
		c.RawURL("abc.png"))
}

func TestMirrorTickLifecycle(t *testing.T) {
	repo := newFakeRepo()
	repo.set("API_JBChangeLogs.json", `{"v":1}`)
	c := newTestClient(t, repo)

	local := filepath.Join(t.TempDir(), "API_JBChangeLogs.json")
	m := NewMirror(c, "API_JBChangeLogs.json", local)

	// First tick fills the empty local file.
	require.NoError(t, m.Tick(context.Background()))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))

	// Unchanged SHA must not rewrite: mtime stays put.
	before, err := os.Stat(local)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Tick(context.Background()))
	after, err := os.Stat(local)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	// Remote change rewrites atomically.
	repo.set("API_JBChangeLogs.json", `{"v":2}`)
	require.NoError(t, m.Tick(context.Background()))
	data, err = os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))
}

func TestMirrorRateLimitSurfaces(t *testing.T) {
	repo := newFakeRepo()
	repo.forbidden = true
	c := newTestClient(t, repo)

	m := NewMirror(c, "a.json", filepath.Join(t.TempDir(), "a.json"))
	assert.ErrorIs(t, m.Tick(context.Background()), ErrRateLimited)
}

func TestBackupPushesChangedFiles(t *testing.T) {
	repo := newFakeRepo()
	repo.set("leveling_data.json", `{"old":true}`)
	c := newTestClient(t, repo)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leveling_data.json"), []byte(`{"new":true}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome_data.json"), []byte(`{}`), 0o644))

	b := NewBackup(c, "* * * * *", dir, []string{"leveling_data.json", "welcome_data.json", "absent.json"})
	b.RunOnce(context.Background())

	data, _, err := c.Get(context.Background(), "leveling_data.json")
	require.NoError(t, err)
	assert.Equal(t, `{"new":true}`, string(data))

	data, _, err = c.Get(context.Background(), "welcome_data.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestBackupSkipsIdenticalFiles(t *testing.T) {
	repo := newFakeRepo()
	repo.set("leveling_data.json", `{"same":true}`)
	c := newTestClient(t, repo)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leveling_data.json"), []byte(`{"same":true}`), 0o644))

	b := NewBackup(c, "* * * * *", dir, []string{"leveling_data.json"})
	b.RunOnce(context.Background())
	assert.Zero(t, repo.putCount)
}
