package unified

import (
	"encoding/json"
	"strings"
)

const defaultChannelName = "N/A"

// UnifiedProfile merges one identity across the canonical source, the HR systems and support.
type UnifiedProfile struct {
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	EmploymentStatus string            `json:"employment_status"`
	SupportTickets   []json.RawMessage `json:"support_tickets"`
	HRSystems        []string          `json:"hr_systems"`
	ChannelName      string            `json:"youtube_channel"`
}

func emptyProfile(email string) UnifiedProfile {
	return UnifiedProfile{
		Email:          email,
		SupportTickets: []json.RawMessage{},
		HRSystems:      []string{},
		ChannelName:    defaultChannelName,
	}
}

// SourceData is what one system returned for an identity.
type SourceData struct {
	System       string          `json:"system"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Record       json.RawMessage `json:"record,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
}

func (s SourceData) OK() bool {
	return s.Error == "" && len(s.Record) > 0
}

func sourceFailure(system, connectionID string, err error) SourceData {
	return SourceData{System: system, ConnectionID: connectionID, Error: err.Error(), ErrorKind: KindOf(err)}
}

// ProfileBundle keeps the raw per-source answers next to the merged profile.
type ProfileBundle struct {
	Identity       json.RawMessage       `json:"youtube_info"`
	HRData         map[string]SourceData `json:"hr_data"`
	SupportData    SourceData            `json:"support_data"`
	UnifiedProfile UnifiedProfile        `json:"unified_profile"`
}

// identityEmail reads email, then channel_email.
func identityEmail(record json.RawMessage) string {
	fields := objectFields(record)
	if e := fieldText(fields, "email"); e != "" {
		return e
	}
	return fieldText(fields, "channel_email")
}

// RecordEmail is the first email a platform record carries: email, emails[0].email, then channel_email.
func RecordEmail(record json.RawMessage) string {
	fields := objectFields(record)
	if emails := recordEmails(fields); len(emails) > 0 {
		return emails[0]
	}
	return fieldText(fields, "channel_email")
}

func objectFields(record json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil
	}
	return fields
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// recordEmails collects email and emails[].email of an HR record.
func recordEmails(fields map[string]json.RawMessage) []string {
	var out []string
	if e := fieldText(fields, "email"); e != "" {
		out = append(out, e)
	}
	if raw, ok := fields["emails"]; ok {
		var emails []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &emails); err == nil {
			for _, e := range emails {
				if v := fieldText(e, "email"); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

func firstTelephone(fields map[string]json.RawMessage) string {
	raw, ok := fields["telephones"]
	if !ok {
		return ""
	}
	var phones []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &phones); err != nil || len(phones) == 0 {
		return ""
	}
	return fieldText(phones[0], "telephone")
}

// mergeProfile fills profile from the first HR system, in priority order, whose record has a name.
func mergeProfile(profile *UnifiedProfile, identity json.RawMessage, hr []SourceData, support SourceData) {
	if identity != nil {
		if name := fieldText(objectFields(identity), "channel_name"); name != "" {
			profile.ChannelName = name
		}
	}

	for _, source := range hr {
		if !source.OK() {
			continue
		}
		fields := objectFields(source.Record)
		name := fieldText(fields, "name")
		if name == "" {
			continue
		}
		profile.Name = name
		profile.Phone = firstTelephone(fields)
		profile.EmploymentStatus = fieldText(fields, "employment_status")
		profile.HRSystems = append(profile.HRSystems, source.System)
		break
	}

	if support.Error == "" && len(support.Record) > 0 {
		var tickets []json.RawMessage
		if err := json.Unmarshal(support.Record, &tickets); err == nil && tickets != nil {
			profile.SupportTickets = tickets
		}
	}
}
