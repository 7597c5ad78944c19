package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/appctx"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/utils"
)

func echoContext(c *gin.Context) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	hide, _ := appctx.GetBool(c.Request.Context(), appctx.ContextKeyHideDemoData)
	c.JSON(http.StatusOK, gin.H{"cid": cid, "hide": hide})
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/x", echoContext)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderCorrelationId, "abc")
	rec := serve(r, req)
	if got := rec.Header().Get(HeaderCorrelationId); got != "abc" {
		t.Fatalf("expected echoed correlation id abc, got %q", got)
	}

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := rec.Header().Get(HeaderCorrelationId); len(got) != 36 {
		t.Fatalf("expected a generated uuid, got %q", got)
	}
}

func TestDemoScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("GO_ENV", "")
	t.Setenv("HIDE_DEMO_DATA", "")
	r := gin.New()
	r.Use(DemoScope())
	r.GET("/x", echoContext)

	cases := []struct {
		name   string
		target string
		header string
		env    string
		want   string
	}{
		{"default shows demo", "/x", "", "", `"hide":false`},
		{"header hides", "/x", "true", "", `"hide":true`},
		{"query hides", "/x?hide_demo=1", "", "", `"hide":true`},
		{"env default hides", "/x", "", "true", `"hide":true`},
		{"header overrides env", "/x", "false", "true", `"hide":false`},
	}
	for _, tc := range cases {
		t.Setenv("HIDE_DEMO_DATA", tc.env)
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set(HeaderHideDemoData, tc.header)
		}
		rec := serve(r, req)
		if !strings.Contains(rec.Body.String(), tc.want) {
			t.Fatalf("%s: expected %s in %s", tc.name, tc.want, rec.Body.String())
		}
	}
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if _, err := config.ConnectSQLite(":memory:"); err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	var ready atomic.Bool
	r := gin.New()
	r.Use(Readiness(&ready))
	r.GET("/x", echoContext)

	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusNoContent {
		t.Fatalf("healthz: expected 204, got %d", rec.Code)
	}
	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: expected 503, got %d", rec.Code)
	}
	ready.Store(true)
	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)); rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", rec.Code)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" https://a.com, ,https://b.com ")
	if len(got) != 2 || got[0] != "https://a.com" || got[1] != "https://b.com" {
		t.Fatalf("unexpected split: %#v", got)
	}
	if SplitAndTrim("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
