package unified

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathEscapesSegments(t *testing.T) {
	assert.Equal(t, "/hris/abc/employee", Path("hris", "abc", "employee"))
	assert.Equal(t, "/passthrough/a%2Fb/youtube/users", Path("passthrough", "a/b", "youtube/users"))
	assert.Equal(t, "/crm/a%20b/contacts", Path("crm", "a b", "/contacts/"))
}

func TestClientSendsBearerToken(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/hris/conn-1/employee", 200, `{"data":[]}`)
	client := NewClientWithHTTP(testSettings(srv.URL), srv.Client())

	resp, err := client.Get(context.Background(), Path("hris", "conn-1", "employee"), nil)
	require.NoError(t, err)
	assert.True(t, resp.Success())

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestClientTransportFailure(t *testing.T) {
	_, srv := newFakeUpstream(t)
	settings := testSettings(srv.URL)
	client := NewClientWithHTTP(settings, srv.Client())
	srv.Close()

	_, err := client.Get(context.Background(), "/hris/x/employee", nil)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestFetchUsesCatalog(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/ticketing/zd/customers", 200, `[{"id":"c1"}]`)
	f.on(http.MethodGet, "/passthrough/yt/youtube/analytics", 200, `{"data":{"views":10}}`)
	f.on(http.MethodGet, "/ats/conn/candidate?limit=20&offset=0", 200, `{"data":[{"id":"cand"}]}`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))
	ctx := context.Background()

	contacts, err := accessor.Fetch(ctx, "zendesk", "contacts", "zd")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	analytics, err := accessor.Fetch(ctx, "youtube", "analytics", "yt")
	require.NoError(t, err)
	require.Len(t, analytics, 1)
	assert.JSONEq(t, `{"views":10}`, string(analytics[0]))

	candidates, err := accessor.FetchResource(ctx, ResourceCandidates, "conn")
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	_, err = accessor.Fetch(ctx, "zendesk", "companies", "zd")
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	_, err = accessor.Fetch(ctx, "myspace", "contacts", "zd")
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	_, err = accessor.FetchResource(ctx, ResourceTickets, "  ")
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestFetchEmployeesRequestsFieldList(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/hris/conn/employee", 200, `{"data":[{"id":"e1"}]}`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))

	_, err := accessor.FetchResource(context.Background(), ResourceEmployees, "conn")
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, EmployeeFields, f.requests[0].URL.Query().Get("fields"))
}

func TestFetchUnauthorized(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/hris/conn/employee", 401, `{"message":"invalid token"}`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))

	items, err := accessor.FetchResource(context.Background(), ResourceEmployees, "conn")
	assert.Nil(t, items)
	result := NewResult(items, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Unauthorized")
	assert.Equal(t, KindUpstream, result.ErrorKind)
}

func TestRawReportsShapeAndKeys(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/ticketing/conn/tickets", 200, `{"data":[],"total":0}`)
	f.on(http.MethodGet, "/crm/conn/contacts", 502, `bad gateway`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))
	ctx := context.Background()

	raw, err := accessor.Raw(ctx, ResourceTickets, "conn")
	require.NoError(t, err)
	assert.Equal(t, ShapeDataList, raw.Shape)
	assert.Equal(t, []string{"data", "total"}, raw.Keys)

	raw, err = accessor.Raw(ctx, ResourceContacts, "conn")
	require.NoError(t, err)
	assert.Equal(t, 502, raw.StatusCode)
	assert.JSONEq(t, `"bad gateway"`, string(raw.Body))
}

func TestTestConnection(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodGet, "/hris/conn/employee", 200, `{"data":[]}`)
	f.on(http.MethodGet, "/ticketing/conn/tickets", 401, `{}`)
	f.on(http.MethodGet, "/crm/conn/contacts", 200, `[]`)
	f.on(http.MethodGet, "/ats/conn/candidate", 403, `{}`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))

	probe, err := accessor.TestConnection(context.Background(), "conn")
	require.NoError(t, err)
	assert.True(t, probe.OK())
	assert.Equal(t, []string{"hris_employee", "crm_contacts"}, probe.Working())
	assert.Equal(t, "Connection working! Working endpoints: hris_employee, crm_contacts", probe.Message())
	assert.Equal(t, 401, probe.Details["ticketing_tickets"])

	failing := ConnectionProbe{
		Order:   []string{"hris_employee", "ats_candidates"},
		Details: map[string]int{"hris_employee": 401, "ats_candidates": 0},
	}
	assert.False(t, failing.OK())
	assert.Equal(t, "All endpoints failed. Status codes: hris_employee=401, ats_candidates=0", failing.Message())
}

func TestCreateTicket(t *testing.T) {
	f, srv := newFakeUpstream(t)
	f.on(http.MethodPost, "/ticketing/zd/tickets", 201, `{"id":"t-9","subject":"Help"}`)
	accessor := NewAccessor(NewClientWithHTTP(testSettings(srv.URL), srv.Client()))

	created, err := accessor.CreateTicket(context.Background(), "zd", json.RawMessage(`{"subject":"Help"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t-9","subject":"Help"}`, string(created))
	assert.JSONEq(t, `{"subject":"Help"}`, f.bodies["/ticketing/zd/tickets"])
	assert.Equal(t, "application/json", f.requests[0].Header.Get("Content-Type"))

	_, err = accessor.CreateTicket(context.Background(), "zd", json.RawMessage(`not json`))
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}
