package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testOwner = "octo"
	testRepo  = "reviews"
	testToken = "test-github-token"
)

// contentsCall is one request received by fakeContentsAPI.
type contentsCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Trace  string
	Body   putFileRequest
	HasSHA bool
}

// fakeContentsAPI mimics the create-or-update subset of the contents API.
type fakeContentsAPI struct {
	mu           sync.Mutex
	files        map[string]string // path -> sha
	lookupStatus int
	writeStatus  int
	writeBody    string
	calls        []contentsCall
	seq          int
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{files: make(map[string]string)}
}

func (f *fakeContentsAPI) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeContentsAPI) Calls() []contentsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contentsCall(nil), f.calls...)
}

func (f *fakeContentsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := fmt.Sprintf("/repos/%s/%s/contents/", testOwner, testRepo)
	call := contentsCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Trace:  r.Header.Get("Traceparent"),
	}
	if !strings.HasPrefix(r.URL.Path, prefix) {
		f.calls = append(f.calls, call)
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		f.calls = append(f.calls, call)
		if f.lookupStatus != 0 {
			w.WriteHeader(f.lookupStatus)
			io.WriteString(w, `{"message":"lookup refused"}`)
			return
		}
		sha, ok := f.files[path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"type": "file", "path": path, "sha": sha})

	case http.MethodPut:
		raw, _ := io.ReadAll(r.Body)
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(raw, &fields)
		_, call.HasSHA = fields["sha"]
		_ = json.Unmarshal(raw, &call.Body)
		f.calls = append(f.calls, call)

		if f.writeStatus != 0 {
			w.WriteHeader(f.writeStatus)
			io.WriteString(w, f.writeBody)
			return
		}
		if current, exists := f.files[path]; exists && current != call.Body.SHA {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"message":"sha mismatch"}`)
			return
		}
		status := http.StatusCreated
		if _, exists := f.files[path]; exists {
			status = http.StatusOK
		}
		f.seq++
		sha := fmt.Sprintf("sha-%d", f.seq)
		f.files[path] = sha
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": map[string]string{"path": path, "sha": sha},
			"commit":  map[string]string{"message": call.Body.Message},
		})

	default:
		f.calls = append(f.calls, call)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// testConfig returns a Config pointing at apiURL.
func testConfig(apiURL string) *Config {
	return &Config{
		GitHubToken:  testToken,
		GitHubUser:   testOwner,
		GitHubRepo:   testRepo,
		GitHubAPIURL: apiURL,
		Port:         "3000",
		LogLevel:     "debug",
		LogFormat:    "console",
	}
}
