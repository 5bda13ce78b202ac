package services

import (
	"testing"
	"time"

	"job-signals/models"
	"job-signals/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

var runTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestNormalizeDefaults(t *testing.T) {
	n := NewNormalizer("fantastic_jobs_apify", newTestLogger())
	post := n.Normalize("Acme", models.RawJob{URL: " https://acme/x "}, runTime)

	if post.Title != DefaultTitle {
		t.Errorf("Title: got %q, want %q", post.Title, DefaultTitle)
	}
	if post.Location != nil {
		t.Errorf("Location: got %q, want nil", *post.Location)
	}
	if post.Country != nil {
		t.Errorf("Country: got %q, want nil", *post.Country)
	}
	if post.PostedAt != nil {
		t.Errorf("PostedAt: got %v, want nil", *post.PostedAt)
	}
	if !post.IsActive {
		t.Error("freshly observed post must be active")
	}
	if !post.FirstSeenAt.Equal(runTime) || !post.LastSeenAt.Equal(runTime) {
		t.Errorf("seen timestamps: got %v/%v, want %v", post.FirstSeenAt, post.LastSeenAt, runTime)
	}
	if post.SourceURL != "https://acme/x" {
		t.Errorf("SourceURL: got %q", post.SourceURL)
	}
	if post.Source != "fantastic_jobs_apify" {
		t.Errorf("Source: got %q", post.Source)
	}
	if post.JobUID != JobUID("Acme", nil, "https://acme/x") {
		t.Errorf("JobUID should fall back to the url seed")
	}
}

func TestNormalizeLocation(t *testing.T) {
	n := NewNormalizer("test", newTestLogger())

	tests := []struct {
		name string
		locs []models.LocationCandidate
		want string // "" means nil
	}{
		{"full", []models.LocationCandidate{{City: "Berlin", Admin: "Berlin", Country: "Germany"}}, "Berlin, Berlin, Germany"},
		{"skips empty parts", []models.LocationCandidate{{City: "Austin", Country: "United States"}}, "Austin, United States"},
		{"first candidate only", []models.LocationCandidate{{Country: "France"}, {City: "Paris"}}, "France"},
		{"all empty", []models.LocationCandidate{{City: "  "}}, ""},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		post := n.Normalize("Acme", models.RawJob{Locations: tt.locs}, runTime)
		got := ""
		if post.Location != nil {
			got = *post.Location
		}
		if got != tt.want {
			t.Errorf("%s: location = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeCountry(t *testing.T) {
	n := NewNormalizer("test", newTestLogger())
	post := n.Normalize("Acme", models.RawJob{Countries: []string{"Canada", "United States"}}, runTime)
	if post.Country == nil || *post.Country != "Canada" {
		t.Errorf("Country: got %v, want Canada", post.Country)
	}
}

func TestNormalizePostedAt(t *testing.T) {
	n := NewNormalizer("test", newTestLogger())

	tests := []struct {
		raw  string
		want string // RFC3339 in UTC, "" means nil
	}{
		{"2026-03-01T10:00:00Z", "2026-03-01T10:00:00Z"},
		{"2026-03-01T12:00:00+02:00", "2026-03-01T10:00:00Z"},
		{"2026-03-01T10:00:00", "2026-03-01T10:00:00Z"},
		{"2026-03-01", "2026-03-01T00:00:00Z"},
		{"yesterday", ""},
		{"", ""},
	}

	for _, tt := range tests {
		post := n.Normalize("Acme", models.RawJob{DatePosted: tt.raw}, runTime)
		got := ""
		if post.PostedAt != nil {
			got = post.PostedAt.Format(time.RFC3339)
		}
		if got != tt.want {
			t.Errorf("PostedAt(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeAllCollapsesDuplicates(t *testing.T) {
	n := NewNormalizer("test", newTestLogger())
	raw := []models.RawJob{
		{ID: strPtr("7"), Title: "Old title"},
		{ID: strPtr("8"), Title: "Other"},
		{ID: strPtr("7"), Title: "New title"},
	}

	posts := n.NormalizeAll("Acme", raw, runTime)
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts after collapsing, got %d", len(posts))
	}
	if posts[0].Title != "New title" {
		t.Errorf("duplicate should keep the latest record, got %q", posts[0].Title)
	}
}
