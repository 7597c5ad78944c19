package unified

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmdatafocus/unified_backend/config"
)

// EmployeeFields is the field list requested from every hris/employee call.
const EmployeeFields = "id,created_at,updated_at,name,emails,telephones,image_url,timezone,employee_number,employment_status,language_locale,employee_roles"

// Connection-level resources, addressable for any connection id.
const (
	ResourceEmployees  = "employees"
	ResourceTickets    = "tickets"
	ResourceContacts   = "contacts"
	ResourceCompanies  = "companies"
	ResourceCandidates = "candidates"
)

type Endpoint struct {
	Category string
	Resource string
	Query    url.Values
}

func (e Endpoint) Path(connectionID string) string {
	return Path(e.Category, connectionID, e.Resource)
}

func (e Endpoint) query(extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range e.Query {
		q[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		q[k] = append([]string(nil), v...)
	}
	return q
}

var (
	employeesEndpoint  = Endpoint{Category: "hris", Resource: "employee", Query: url.Values{"fields": {EmployeeFields}}}
	ticketsEndpoint    = Endpoint{Category: "ticketing", Resource: "tickets"}
	customersEndpoint  = Endpoint{Category: "ticketing", Resource: "customers"}
	contactsEndpoint   = Endpoint{Category: "crm", Resource: "contacts"}
	companiesEndpoint  = Endpoint{Category: "crm", Resource: "companies"}
	candidatesEndpoint = Endpoint{Category: "ats", Resource: "candidate", Query: url.Values{"limit": {"20"}, "offset": {"0"}}}
	youtubeUsers       = Endpoint{Category: "passthrough", Resource: "youtube/users"}
)

var resourceEndpoints = map[string]Endpoint{
	ResourceEmployees:  employeesEndpoint,
	ResourceTickets:    ticketsEndpoint,
	ResourceContacts:   contactsEndpoint,
	ResourceCompanies:  companiesEndpoint,
	ResourceCandidates: candidatesEndpoint,
}

// platformCatalog maps platform -> data type -> endpoint.
var platformCatalog = map[string]map[string]Endpoint{
	config.SystemZendesk: {
		"tickets":  ticketsEndpoint,
		"contacts": customersEndpoint,
	},
	config.SystemHubSpot: {
		"contacts":  contactsEndpoint,
		"employees": employeesEndpoint,
		"companies": companiesEndpoint,
	},
	config.SystemFirefish: {
		"contacts": contactsEndpoint,
	},
	config.SystemWhatsApp: {
		"messages": {Category: "messaging", Resource: "messages"},
	},
	config.SystemYouTube: {
		"analytics": {Category: "passthrough", Resource: "youtube/analytics"},
		"users":     youtubeUsers,
	},
}

// LookupPlatformEndpoint reports the endpoint serving dataType on platform.
func LookupPlatformEndpoint(platform, dataType string) (Endpoint, bool) {
	byType, ok := platformCatalog[platform]
	if !ok {
		return Endpoint{}, false
	}
	e, ok := byType[dataType]
	return e, ok
}

func LookupResourceEndpoint(resource string) (Endpoint, bool) {
	e, ok := resourceEndpoints[resource]
	return e, ok
}

// Accessor issues exactly one upstream call per fetch. No retries, no caching.
type Accessor struct {
	client *Client
}

func NewAccessor(client *Client) *Accessor {
	return &Accessor{client: client}
}

func (a *Accessor) Fetch(ctx context.Context, platform, dataType, connectionID string) ([]json.RawMessage, error) {
	endpoint, ok := LookupPlatformEndpoint(platform, dataType)
	if !ok {
		return nil, invalidRequest("unsupported data type %q for platform %q", dataType, platform)
	}
	return a.fetch(ctx, endpoint, connectionID, nil)
}

func (a *Accessor) FetchResource(ctx context.Context, resource, connectionID string) ([]json.RawMessage, error) {
	endpoint, ok := LookupResourceEndpoint(resource)
	if !ok {
		return nil, invalidRequest("unknown resource %q", resource)
	}
	return a.fetch(ctx, endpoint, connectionID, nil)
}

func (a *Accessor) fetch(ctx context.Context, endpoint Endpoint, connectionID string, extra url.Values) ([]json.RawMessage, error) {
	resp, err := a.get(ctx, endpoint, connectionID, extra)
	if err != nil {
		return nil, err
	}
	return Normalize(resp)
}

func (a *Accessor) get(ctx context.Context, endpoint Endpoint, connectionID string, extra url.Values) (*Response, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, invalidRequest("connection id is required")
	}
	return a.client.Get(ctx, endpoint.Path(connectionID), endpoint.query(extra))
}

// RawResponse is an unnormalized upstream answer, kept for troubleshooting.
type RawResponse struct {
	StatusCode int             `json:"status_code"`
	Shape      Shape           `json:"shape"`
	Keys       []string        `json:"keys"`
	Body       json.RawMessage `json:"body"`
}

func (a *Accessor) Raw(ctx context.Context, resource, connectionID string) (*RawResponse, error) {
	endpoint, ok := LookupResourceEndpoint(resource)
	if !ok {
		return nil, invalidRequest("unknown resource %q", resource)
	}
	resp, err := a.get(ctx, endpoint, connectionID, nil)
	if err != nil {
		return nil, err
	}
	env := DecodeEnvelope(resp.Body)
	raw := &RawResponse{StatusCode: resp.StatusCode, Shape: env.Shape, Keys: env.Keys()}
	if json.Valid(resp.Body) {
		raw.Body = json.RawMessage(resp.Body)
	} else {
		quoted, _ := json.Marshal(string(resp.Body))
		raw.Body = quoted
	}
	return raw, nil
}

type probe struct {
	name     string
	endpoint Endpoint
}

var connectionProbes = []probe{
	{"hris_employee", employeesEndpoint},
	{"ticketing_tickets", ticketsEndpoint},
	{"crm_contacts", contactsEndpoint},
	{"ats_candidates", Endpoint{Category: "ats", Resource: "candidate"}},
}

// ConnectionProbe holds the status code of each probed endpoint; 0 means the call never completed.
type ConnectionProbe struct {
	Order   []string
	Details map[string]int
}

// Working lists the probes that answered 200, in probe order.
func (p ConnectionProbe) Working() []string {
	var out []string
	for _, name := range p.Order {
		if p.Details[name] == 200 {
			out = append(out, name)
		}
	}
	return out
}

func (p ConnectionProbe) OK() bool {
	return len(p.Working()) > 0
}

func (p ConnectionProbe) Message() string {
	if p.OK() {
		return "Connection working! Working endpoints: " + strings.Join(p.Working(), ", ")
	}
	parts := make([]string, 0, len(p.Order))
	for _, name := range p.Order {
		parts = append(parts, fmt.Sprintf("%s=%d", name, p.Details[name]))
	}
	return "All endpoints failed. Status codes: " + strings.Join(parts, ", ")
}

// TestConnection probes four endpoint families for connectionID and records each status code.
func (a *Accessor) TestConnection(ctx context.Context, connectionID string) (ConnectionProbe, error) {
	if strings.TrimSpace(connectionID) == "" {
		return ConnectionProbe{}, invalidRequest("connection id is required")
	}
	result := ConnectionProbe{Details: map[string]int{}}
	for _, p := range connectionProbes {
		result.Order = append(result.Order, p.name)
		resp, err := a.get(ctx, p.endpoint, connectionID, nil)
		if err != nil {
			result.Details[p.name] = 0
			continue
		}
		result.Details[p.name] = resp.StatusCode
	}
	return result, nil
}

// CreateTicket posts ticket to ticketing/{connectionID}/tickets and returns the created record.
func (a *Accessor) CreateTicket(ctx context.Context, connectionID string, ticket json.RawMessage) (json.RawMessage, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, invalidRequest("connection id is required")
	}
	if len(ticket) == 0 || !json.Valid(ticket) {
		return nil, invalidRequest("ticket data must be a JSON object")
	}
	resp, err := a.client.Post(ctx, ticketsEndpoint.Path(connectionID), ticket)
	if err != nil {
		return nil, err
	}
	return singleRecord(resp)
}

// singleRecord accepts {data:{...}}, a bare object or a one-element list.
func singleRecord(resp *Response) (json.RawMessage, error) {
	if resp.StatusCode >= 400 {
		return nil, upstreamError(resp)
	}
	env := DecodeEnvelope(resp.Body)
	switch env.Shape {
	case ShapeDataObject, ShapeDataList, ShapeBareList:
		if len(env.Items) > 0 {
			return env.Items[0], nil
		}
	case ShapeUnknown:
		if env.Fields != nil {
			return json.RawMessage(resp.Body), nil
		}
	}
	_, err := Normalize(resp)
	if err == nil {
		err = unrecognizedShape(env)
	}
	return nil, err
}
