package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Entity is a tracked company whose postings are monitored.
type Entity struct {
	Name       string `yaml:"name"`
	CareersURL string `yaml:"careers_url"`
}

// LocationCandidate is one structured location guess attached to a raw posting.
type LocationCandidate struct {
	City    string `json:"city"`
	Admin   string `json:"admin"`
	Country string `json:"country"`
}

// RawJob holds one posting exactly as the upstream feed returned it.
// It only lives for a single fetch/normalize cycle. Fields that are only
// carried into metadata keep whatever JSON type the feed sent.
type RawJob struct {
	ID                *string
	URL               string
	Title             string
	Organization      string
	DatePosted        string
	DateCreated       string
	Locations         []LocationCandidate
	Countries         []string
	Source            string
	SourceDomain      string
	SourceType        string
	RemoteDerived     any
	AITaxonomies      any
	AIWorkArrangement any
}

// UnmarshalJSON decodes a feed record field by field. A field with an
// unexpected type is zeroed instead of failing the record: the id may be a
// string or a number, scalar text fields accept numbers and booleans, and
// list entries of the wrong shape are skipped.
func (r *RawJob) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	*r = RawJob{
		ID:                parseRawID(fields["id"]),
		URL:               lenientString(fields["url"]),
		Title:             lenientString(fields["title"]),
		Organization:      lenientString(fields["organization"]),
		DatePosted:        lenientString(fields["date_posted"]),
		DateCreated:       lenientString(fields["date_created"]),
		Source:            lenientString(fields["source"]),
		SourceDomain:      lenientString(fields["source_domain"]),
		SourceType:        lenientString(fields["source_type"]),
		RemoteDerived:     lenientAny(fields["remote_derived"]),
		AITaxonomies:      lenientAny(fields["ai_taxonomies_a"]),
		AIWorkArrangement: lenientAny(fields["ai_work_arrangement"]),
	}

	var locs []json.RawMessage
	if err := json.Unmarshal(fields["locations_derived"], &locs); err == nil {
		for _, raw := range locs {
			var loc LocationCandidate
			if err := json.Unmarshal(raw, &loc); err != nil {
				continue
			}
			r.Locations = append(r.Locations, loc)
		}
	}

	var countries []json.RawMessage
	if err := json.Unmarshal(fields["countries_derived"], &countries); err == nil {
		for _, raw := range countries {
			var c string
			if err := json.Unmarshal(raw, &c); err != nil {
				continue
			}
			r.Countries = append(r.Countries, c)
		}
	}
	return nil
}

// lenientString reads a JSON scalar as text. Strings are returned as is,
// numbers and booleans in their literal form, anything else as "".
func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case float64, bool:
		return strings.TrimSpace(string(raw))
	}
	return ""
}

func lenientAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func parseRawID(raw json.RawMessage) *string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &str
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if i, err := num.Int64(); err == nil {
			v := strconv.FormatInt(i, 10)
			return &v
		}
		v := num.String()
		return &v
	}
	return &s
}

// JobPost is the normalized record persisted in the job_posts table.
type JobPost struct {
	JobUID      string
	Company     string
	Source      string
	SourceURL   string
	Title       string
	Location    *string
	Country     *string
	Department  *string
	PostedAt    *time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsActive    bool
	Metadata    map[string]any
}

// MetadataJSON encodes Metadata for storage; nil metadata encodes as {}.
func (j JobPost) MetadataJSON() []byte {
	return encodeMetadata(j.Metadata)
}

func encodeMetadata(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
