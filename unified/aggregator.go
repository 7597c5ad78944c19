package unified

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Aggregator builds unified profiles from the canonical identity list, every HR system and the
// support platform. Connection ids come only from the settings it was built with.
type Aggregator struct {
	accessor *Accessor
	settings config.PlatformSettings
	cache    *ProfileCache
	logger   *logrus.Logger
}

func NewAggregator(accessor *Accessor, settings config.PlatformSettings) *Aggregator {
	logger := config.GetLogger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{accessor: accessor, settings: settings, logger: logger}
}

// WithCache enables profile caching for UserProfile. A nil cache disables it.
func (a *Aggregator) WithCache(cache *ProfileCache) *Aggregator {
	a.cache = cache
	return a
}

func (a *Aggregator) Settings() config.PlatformSettings {
	return a.settings
}

func (a *Aggregator) Accessor() *Accessor {
	return a.accessor
}

func (a *Aggregator) Cache() *ProfileCache {
	return a.cache
}

func (a *Aggregator) limit() int {
	if a.settings.Concurrency < 1 {
		return 1
	}
	return a.settings.Concurrency
}

// Identities lists every record of the canonical source.
func (a *Aggregator) Identities(ctx context.Context) ([]json.RawMessage, error) {
	system := a.settings.CanonicalSystem
	connectionID := a.settings.ConnectionID(system)
	if connectionID == "" {
		return nil, invalidRequest("no connection id configured for %s", system)
	}
	endpoint, ok := LookupPlatformEndpoint(system, "users")
	if !ok {
		endpoint, ok = LookupPlatformEndpoint(system, "contacts")
	}
	if !ok {
		return nil, invalidRequest("%s cannot list identities", system)
	}
	return a.accessor.fetch(ctx, endpoint, connectionID, nil)
}

// FindIdentity scans the canonical list for email. The list is small, so a linear scan is fine.
func (a *Aggregator) FindIdentity(ctx context.Context, email string) (json.RawMessage, error) {
	identities, err := a.Identities(ctx)
	if err != nil {
		return nil, err
	}
	for _, identity := range identities {
		if sameEmail(identityEmail(identity), email) {
			return identity, nil
		}
	}
	return nil, notFound("no %s identity with email %s", a.settings.CanonicalSystem, email)
}

// BuildUnifiedProfile never fails: each source that cannot answer leaves its fields at their defaults.
func (a *Aggregator) BuildUnifiedProfile(ctx context.Context, email string) UnifiedProfile {
	ctx, span := tracer.Start(ctx, "unified.BuildUnifiedProfile")
	defer span.End()

	identity, err := a.FindIdentity(ctx, email)
	if err != nil {
		span.SetAttributes(attribute.String("unified.identity_error", string(KindOf(err))))
		config.LogWarn(a.logger, "unified", "BuildUnifiedProfile", email, err)
	}
	return a.bundle(ctx, email, identity).UnifiedProfile
}

// UserProfile returns the profile bundle of one canonical identity; NotFound when the identity is absent.
func (a *Aggregator) UserProfile(ctx context.Context, email string) (*ProfileBundle, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalidRequest("email is required")
	}
	if cached, ok := a.cache.Get(ctx, email); ok {
		return cached, nil
	}

	ctx, span := tracer.Start(ctx, "unified.UserProfile")
	defer span.End()

	identity, err := a.FindIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	bundle := a.bundle(ctx, identityEmail(identity), identity)
	a.cache.Set(ctx, email, &bundle)
	return &bundle, nil
}

// BuildAllProfiles aggregates every canonical identity, keyed by normalized email. Case variants of
// one address are one identity; the first record wins. It fails only when the canonical list
// itself cannot be read.
func (a *Aggregator) BuildAllProfiles(ctx context.Context) (map[string]ProfileBundle, error) {
	ctx, span := tracer.Start(ctx, "unified.BuildAllProfiles")
	defer span.End()

	identities, err := a.Identities(ctx)
	if err != nil {
		return nil, err
	}

	type job struct {
		email    string
		identity json.RawMessage
	}
	var jobs []job
	seen := map[string]bool{}
	for _, identity := range identities {
		email := utils.NormalizeEmail(identityEmail(identity))
		if email == "" {
			a.logger.WithFields(logrus.Fields{
				"module":   "unified",
				"funcName": "BuildAllProfiles",
			}).Warn("skipping identity without email")
			continue
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		jobs = append(jobs, job{email: email, identity: identity})
	}
	span.SetAttributes(attribute.Int("unified.identities", len(jobs)))

	bundles := make([]ProfileBundle, len(jobs))
	var g errgroup.Group
	g.SetLimit(a.limit())
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			bundles[i] = a.bundle(ctx, j.email, j.identity)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]ProfileBundle, len(jobs))
	for i, j := range jobs {
		out[j.email] = bundles[i]
	}
	return out, nil
}

// UnifiedCustomerView is the cross-platform customer shell shown by the dashboard.
func (a *Aggregator) UnifiedCustomerView(email string) map[string]interface{} {
	return map[string]interface{}{
		"email":                 email,
		"zendesk_tickets":       []interface{}{},
		"hubspot_activities":    []interface{}{},
		"firefish_interactions": []interface{}{},
		"whatsapp_messages":     []interface{}{},
		"youtube_engagement":    []interface{}{},
	}
}

// TicketResult is the outcome of creating a ticket on one platform.
type TicketResult struct {
	Success bool            `json:"success"`
	Ticket  json.RawMessage `json:"ticket,omitempty"`
	Message string          `json:"message,omitempty"`
	Kind    ErrorKind       `json:"error_kind,omitempty"`
}

var ticketPlatforms = map[string]bool{
	config.SystemZendesk:  true,
	config.SystemHubSpot:  true,
	config.SystemFirefish: true,
}

// CreateCrossPlatformTicket posts ticket to each listed platform that has a connection.
// Unknown platforms are ignored.
func (a *Aggregator) CreateCrossPlatformTicket(ctx context.Context, ticket json.RawMessage, platforms []string) map[string]TicketResult {
	results := map[string]TicketResult{}
	for _, platform := range platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if !ticketPlatforms[platform] {
			continue
		}
		if _, done := results[platform]; done {
			continue
		}
		connectionID := a.settings.ConnectionID(platform)
		if connectionID == "" {
			results[platform] = TicketResult{
				Message: fmt.Sprintf("no connection configured for %s", platform),
				Kind:    KindInvalidRequest,
			}
			continue
		}
		created, err := a.accessor.CreateTicket(ctx, connectionID, ticket)
		if err != nil {
			config.LogWarn(a.logger, "unified", "CreateCrossPlatformTicket", platform, err)
			results[platform] = TicketResult{Message: NewResult(nil, err).Message, Kind: KindOf(err)}
			continue
		}
		results[platform] = TicketResult{Success: true, Ticket: created}
	}
	return results
}

// bundle queries every HR system and the support platform concurrently. Results are slotted by
// position, so the HR priority order survives the fan-out.
func (a *Aggregator) bundle(ctx context.Context, email string, identity json.RawMessage) ProfileBundle {
	if strings.TrimSpace(email) == "" {
		email = identityEmail(identity)
	}
	email = utils.NormalizeEmail(email)
	hrSystems := a.settings.HRSystems()
	hr := make([]SourceData, len(hrSystems))
	var support SourceData

	var g errgroup.Group
	g.SetLimit(a.limit())
	for i, sys := range hrSystems {
		i, sys := i, sys
		g.Go(func() error {
			hr[i] = a.hrRecord(ctx, sys, email)
			return nil
		})
	}
	g.Go(func() error {
		support = a.supportTickets(ctx, email)
		return nil
	})
	_ = g.Wait()

	profile := emptyProfile(email)
	mergeProfile(&profile, identity, hr, support)

	byID := make(map[string]SourceData, len(hr))
	for _, source := range hr {
		byID[source.System] = source
	}
	return ProfileBundle{
		Identity:       identity,
		HRData:         byID,
		SupportData:    support,
		UnifiedProfile: profile,
	}
}

func (a *Aggregator) hrRecord(ctx context.Context, sys config.HRSystem, email string) SourceData {
	if sys.ConnectionID == "" {
		return sourceFailure(sys.ID, "", invalidRequest("no connection id for %s", sys.ID))
	}
	resp, err := a.accessor.get(ctx, employeesEndpoint, sys.ConnectionID, url.Values{"email": {email}})
	if err != nil {
		return sourceFailure(sys.ID, sys.ConnectionID, err)
	}
	if resp.StatusCode >= 400 {
		return sourceFailure(sys.ID, sys.ConnectionID, upstreamError(resp))
	}

	env := DecodeEnvelope(resp.Body)
	candidates := env.Items
	switch env.Shape {
	case ShapeErrorObject:
		_, err := Normalize(resp)
		return sourceFailure(sys.ID, sys.ConnectionID, err)
	case ShapeUnknown:
		if env.Fields == nil {
			_, err := Normalize(resp)
			return sourceFailure(sys.ID, sys.ConnectionID, err)
		}
		if _, hasError := env.Fields["error"]; hasError && fieldText(env.Fields, "name") == "" {
			msg := fieldText(env.Fields, "error")
			if msg == "" {
				msg = "error object without a name"
			}
			return sourceFailure(sys.ID, sys.ConnectionID, &Error{Kind: KindUpstream, Message: "API Error: " + msg})
		}
		// some HR connections answer with the bare employee object
		candidates = []json.RawMessage{json.RawMessage(resp.Body)}
	}

	record := pickEmployee(candidates, email)
	if record == nil {
		return sourceFailure(sys.ID, sys.ConnectionID, notFound("no %s employee with email %s", sys.ID, email))
	}
	return SourceData{System: sys.ID, ConnectionID: sys.ConnectionID, Record: record}
}

// pickEmployee prefers a record listing email; a lone record without any email is trusted to be
// the filtered answer.
func pickEmployee(candidates []json.RawMessage, email string) json.RawMessage {
	for _, c := range candidates {
		for _, e := range recordEmails(objectFields(c)) {
			if sameEmail(e, email) {
				return c
			}
		}
	}
	if len(candidates) == 1 && len(recordEmails(objectFields(candidates[0]))) == 0 {
		return candidates[0]
	}
	return nil
}

// supportTickets returns the raw tickets list attached to the support customer record.
func (a *Aggregator) supportTickets(ctx context.Context, email string) SourceData {
	system := a.settings.SupportSystem
	connectionID := a.settings.ConnectionID(system)
	if connectionID == "" {
		return sourceFailure(system, "", invalidRequest("no connection id for %s", system))
	}
	resp, err := a.accessor.get(ctx, customersEndpoint, connectionID, url.Values{"email": {email}})
	if err != nil {
		return sourceFailure(system, connectionID, err)
	}
	if resp.StatusCode >= 400 {
		return sourceFailure(system, connectionID, upstreamError(resp))
	}

	env := DecodeEnvelope(resp.Body)
	if env.Shape == ShapeErrorObject {
		_, err := Normalize(resp)
		return sourceFailure(system, connectionID, err)
	}
	tickets := ticketList(env.Fields)
	if tickets == nil && len(env.Items) > 0 {
		tickets = ticketList(objectFields(env.Items[0]))
	}
	if tickets == nil {
		tickets = json.RawMessage("[]")
	}
	return SourceData{System: system, ConnectionID: connectionID, Record: tickets}
}

func ticketList(fields map[string]json.RawMessage) json.RawMessage {
	raw, ok := fields["tickets"]
	if !ok {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return nil
	}
	return raw
}
