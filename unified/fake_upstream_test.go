package unified

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mmdatafocus/unified_backend/config"
)

// fakeUpstream answers by "METHOD path?query" or "METHOD path", and records every request.
type fakeUpstream struct {
	mu       sync.Mutex
	routes   map[string]fakeReply
	requests []*http.Request
	bodies   map[string]string
}

type fakeReply struct {
	status int
	body   string
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	f := &fakeUpstream{routes: map[string]fakeReply{}, bodies: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeUpstream) on(method, target string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+target] = fakeReply{status: status, body: body}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	reply, ok := f.routes[r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery]
	if !ok {
		reply, ok = f.routes[r.Method+" "+r.URL.Path]
	}
	if r.Method == http.MethodPost {
		buf, _ := io.ReadAll(r.Body)
		f.bodies[r.URL.Path] = string(buf)
	}
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no route"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

func (f *fakeUpstream) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

func testSettings(baseURL string) config.PlatformSettings {
	s := config.PlatformSettings{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		Concurrency:     3,
		CanonicalSystem: config.SystemYouTube,
		SupportSystem:   config.SystemZendesk,
		HRPriority:      []string{config.SystemHR1, config.SystemHR2, config.SystemHR3},
		Connections: map[string]string{
			config.SystemYouTube: "yt",
			config.SystemZendesk: "zd",
			config.SystemHR1:     "h1",
			config.SystemHR2:     "h2",
			config.SystemHR3:     "h3",
		},
	}
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
}

func newTestAggregator(t *testing.T) (*fakeUpstream, *Aggregator) {
	t.Helper()
	f, srv := newFakeUpstream(t)
	settings := testSettings(srv.URL)
	client := NewClientWithHTTP(settings, srv.Client())
	return f, NewAggregator(NewAccessor(client), settings)
}
