package platformsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/redis/go-redis/v9"
)

type upstream struct {
	mu     sync.Mutex
	routes map[string]reply
	hits   map[string]int
}

type reply struct {
	status int
	body   string
}

func (u *upstream) on(path string, status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes[path] = reply{status: status, body: body}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	rep, ok := u.routes[r.URL.Path]
	u.hits[r.URL.Path]++
	u.mu.Unlock()
	if !ok {
		rep = reply{status: http.StatusNotFound, body: `{"message":"no route"}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

// setup opens an in-memory store and a worker wired to a fake unified API. Each tweak adjusts the
// settings before they are validated.
func setup(t *testing.T, tweaks ...func(*config.PlatformSettings)) (*upstream, *Worker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := config.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	models.MigrateTable()
	config.SetRedisClient(nil)

	u := &upstream{routes: map[string]reply{}, hits: map[string]int{}}
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)

	settings := config.PlatformSettings{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		Concurrency:     2,
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
	for _, tweak := range tweaks {
		tweak(&settings)
	}
	if err := settings.Validate(); err != nil {
		t.Fatalf("settings: %v", err)
	}
	client := unified.NewClientWithHTTP(settings, srv.Client())
	aggregator := unified.NewAggregator(unified.NewAccessor(client), settings)
	return u, NewWorker(aggregator)
}

func newIntegration(t *testing.T, connectionId, platformType string) *models.Integration {
	t.Helper()
	integration, err := models.CreateIntegration(context.Background(), &models.NewIntegration{
		Name:                "Integration " + connectionId,
		PlatformType:        platformType,
		UnifiedConnectionId: connectionId,
	})
	if err != nil {
		t.Fatalf("CreateIntegration(%s): %v", connectionId, err)
	}
	return integration
}

// useRedis installs an in-process redis as the lock and cache backend for the rest of the test.
func useRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.SetRedisClient(client)
	t.Cleanup(func() {
		config.SetRedisClient(nil)
		_ = client.Close()
	})
	return mr, client
}
