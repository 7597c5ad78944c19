package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultUnifiedBaseURL = "https://api.unified.to"

// System ids. Each one is backed by a Unified.to connection.
const (
	SystemZendesk  = "zendesk"
	SystemHR1      = "hr1"
	SystemHR2      = "hr2"
	SystemHR3      = "hr3"
	SystemYouTube  = "youtube"
	SystemHubSpot  = "hubspot"
	SystemFirefish = "firefish"
	SystemWhatsApp = "whatsapp"
)

var KnownSystems = []string{
	SystemZendesk,
	SystemHR1,
	SystemHR2,
	SystemHR3,
	SystemYouTube,
	SystemHubSpot,
	SystemFirefish,
	SystemWhatsApp,
}

// PlatformSettings is loaded once at startup and handed to the unified client, accessor and aggregator.
type PlatformSettings struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	Concurrency     int
	ProfileCacheTTL time.Duration
	PhoneRegion     string

	// CanonicalSystem lists every identity; SupportSystem holds support tickets.
	CanonicalSystem string
	SupportSystem   string
	HRPriority      []string

	Connections map[string]string
}

// HRSystem is one entry of the HR priority list.
type HRSystem struct {
	ID           string
	ConnectionID string
}

func (s PlatformSettings) ConnectionID(system string) string {
	return s.Connections[system]
}

// SystemForConnection resolves a connection id back to its system id.
func (s PlatformSettings) SystemForConnection(connectionID string) (string, bool) {
	if connectionID == "" {
		return "", false
	}
	for _, sys := range KnownSystems {
		if s.Connections[sys] == connectionID {
			return sys, true
		}
	}
	return "", false
}

// HRSystems returns the HR systems in priority order, including ones without a connection id.
func (s PlatformSettings) HRSystems() []HRSystem {
	out := make([]HRSystem, 0, len(s.HRPriority))
	for _, id := range s.HRPriority {
		out = append(out, HRSystem{ID: id, ConnectionID: s.Connections[id]})
	}
	return out
}

// LoadPlatformSettings reads platforms.yaml from dir (optional) and overlays environment variables.
//
//	unified:
//	  api_key: ...
//	  base_url: https://api.unified.to
//	  timeout_seconds: 30
//	aggregator:
//	  concurrency: 4
//	  cache_ttl_seconds: 0
//	hr_priority: [hr1, hr2, hr3]
//	connections:
//	  hr1: 68a3...
func LoadPlatformSettings(dir string) (PlatformSettings, error) {
	v := viper.New()
	v.SetConfigName("platforms")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetDefault("unified.base_url", DefaultUnifiedBaseURL)
	v.SetDefault("unified.timeout_seconds", 30)
	v.SetDefault("aggregator.concurrency", 4)
	v.SetDefault("aggregator.cache_ttl_seconds", 0)
	v.SetDefault("phone_region", "US")
	v.SetDefault("canonical_system", SystemYouTube)
	v.SetDefault("support_system", SystemZendesk)
	v.SetDefault("hr_priority", []string{SystemHR1, SystemHR2, SystemHR3})

	binds := map[string]string{
		"unified.api_key":              "UNIFIED_API_KEY",
		"unified.base_url":             "UNIFIED_API_BASE_URL",
		"unified.timeout_seconds":      "UNIFIED_HTTP_TIMEOUT_SECONDS",
		"aggregator.concurrency":       "AGGREGATOR_CONCURRENCY",
		"aggregator.cache_ttl_seconds": "PROFILE_CACHE_TTL_SECONDS",
		"phone_region":                 "PHONE_DEFAULT_REGION",
		"canonical_system":             "CANONICAL_SYSTEM",
		"support_system":               "SUPPORT_SYSTEM",
		"hr_priority":                  "HR_PRIORITY",
	}
	for _, sys := range KnownSystems {
		binds["connections."+sys] = strings.ToUpper(sys) + "_CONNECTION_ID"
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return PlatformSettings{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return PlatformSettings{}, fmt.Errorf("read platform settings: %w", err)
		}
	}

	settings := PlatformSettings{
		APIKey:          strings.TrimSpace(v.GetString("unified.api_key")),
		BaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString("unified.base_url")), "/"),
		Timeout:         time.Duration(v.GetInt("unified.timeout_seconds")) * time.Second,
		Concurrency:     v.GetInt("aggregator.concurrency"),
		ProfileCacheTTL: time.Duration(v.GetInt("aggregator.cache_ttl_seconds")) * time.Second,
		PhoneRegion:     strings.ToUpper(strings.TrimSpace(v.GetString("phone_region"))),
		CanonicalSystem: strings.TrimSpace(v.GetString("canonical_system")),
		SupportSystem:   strings.TrimSpace(v.GetString("support_system")),
		HRPriority:      toList(v.Get("hr_priority")),
		Connections:     map[string]string{},
	}
	for _, sys := range KnownSystems {
		if id := strings.TrimSpace(v.GetString("connections." + sys)); id != "" {
			settings.Connections[sys] = id
		}
	}

	if err := settings.Validate(); err != nil {
		return PlatformSettings{}, err
	}
	return settings, nil
}

// Validate normalises zero values and rejects unknown system ids.
func (s *PlatformSettings) Validate() error {
	if s.BaseURL == "" {
		s.BaseURL = DefaultUnifiedBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.ProfileCacheTTL < 0 {
		s.ProfileCacheTTL = 0
	}
	if s.PhoneRegion == "" {
		s.PhoneRegion = "US"
	}
	if s.Connections == nil {
		s.Connections = map[string]string{}
	}
	if !isKnownSystem(s.CanonicalSystem) {
		return fmt.Errorf("unknown canonical system %q", s.CanonicalSystem)
	}
	if !isKnownSystem(s.SupportSystem) {
		return fmt.Errorf("unknown support system %q", s.SupportSystem)
	}
	if len(s.HRPriority) == 0 {
		return errors.New("hr priority list is empty")
	}
	seen := map[string]bool{}
	for _, id := range s.HRPriority {
		if !isKnownSystem(id) {
			return fmt.Errorf("unknown hr system %q", id)
		}
		if seen[id] {
			return fmt.Errorf("hr system %q listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

func isKnownSystem(id string) bool {
	for _, sys := range KnownSystems {
		if sys == id {
			return true
		}
	}
	return false
}

// env values arrive as "hr1,hr2"; yaml values as a sequence.
func toList(raw interface{}) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []interface{}:
		for _, x := range v {
			parts = append(parts, fmt.Sprint(x))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
