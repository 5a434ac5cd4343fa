package remote

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeGitHub is an in-memory stand-in for the raw-content host and the
// Contents API of a single repository. It enforces the same SHA
// precondition GitHub does, which is what the commit tests exercise.
type fakeGitHub struct {
	mu    sync.Mutex
	files map[string][]byte

	// beforePut runs after the PUT body is read and before the SHA check.
	// Tests use it to simulate another client committing in between.
	beforePut func(f *fakeGitHub)

	lastAuth  string
	lastQuery string
	lastPut   putRequest
	puts      int

	server *httptest.Server
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{files: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /raw/minelux/Minelux/main/{path...}", f.handleRaw)
	mux.HandleFunc("GET /api/repos/minelux/Minelux/contents/{path...}", f.handleLookup)
	mux.HandleFunc("PUT /api/repos/minelux/Minelux/contents/{path...}", f.handlePut)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// client returns a Client pointed at the fake server.
func (f *fakeGitHub) client(token string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{
		Owner:      "minelux",
		Repo:       "Minelux",
		Branch:     "main",
		Token:      token,
		APIBaseURL: f.server.URL + "/api",
		RawBaseURL: f.server.URL + "/raw",
	}, logger)
}

// put stores content directly, as if another client had committed it.
func (f *fakeGitHub) put(path string, content []byte) {
	f.files[path] = content
}

func (f *fakeGitHub) get(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	return b, ok
}

func blobSHA(b []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(b))
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

func (f *fakeGitHub) handleRaw(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAuth = r.Header.Get("Authorization")
	f.lastQuery = r.URL.RawQuery

	b, ok := f.files[r.PathValue("path")]
	if !ok {
		http.Error(w, "404: Not Found", http.StatusNotFound)
		return
	}
	w.Write(b)
}

func (f *fakeGitHub) handleLookup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Query().Get("ref") != "main" {
		http.Error(w, `{"message":"No commit found for the ref"}`, http.StatusNotFound)
		return
	}
	b, ok := f.files[r.PathValue("path")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"sha": blobSHA(b), "path": r.PathValue("path")})
}

func (f *fakeGitHub) handlePut(w http.ResponseWriter, r *http.Request) {
	var body putRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"message":"Problems parsing JSON"}`, http.StatusBadRequest)
		return
	}

	if f.beforePut != nil {
		f.mu.Lock()
		f.beforePut(f)
		f.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAuth = r.Header.Get("Authorization")
	f.lastPut = body
	path := r.PathValue("path")

	current, exists := f.files[path]
	switch {
	case exists && body.SHA != blobSHA(current):
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, `{"message":"%s does not match %s"}`, path, body.SHA)
		return
	case !exists && body.SHA != "":
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"sha was supplied for a file that does not exist"}`))
		return
	}

	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		http.Error(w, `{"message":"content is not valid Base64"}`, http.StatusUnprocessableEntity)
		return
	}
	f.files[path] = content
	f.puts++

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"content": map[string]string{"path": path, "sha": blobSHA(content)},
		"commit":  map[string]string{"sha": fmt.Sprintf("commit-%d", f.puts), "message": body.Message},
	})
}
