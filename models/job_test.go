package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRawJobIDForms(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{`{"id": "abc-1"}`, strp("abc-1")},
		{`{"id": 1234567890123}`, strp("1234567890123")},
		{`{"id": 12.5}`, strp("12.5")},
		{`{"id": null}`, nil},
		{`{}`, nil},
	}
	for _, tt := range tests {
		var r RawJob
		if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		switch {
		case tt.want == nil && r.ID != nil:
			t.Errorf("Unmarshal(%s).ID = %q; want nil", tt.in, *r.ID)
		case tt.want != nil && (r.ID == nil || *r.ID != *tt.want):
			t.Errorf("Unmarshal(%s).ID = %v; want %q", tt.in, r.ID, *tt.want)
		}
	}
}

func TestRawJobSkipsMalformedLocations(t *testing.T) {
	in := `{
		"title": "SRE",
		"locations_derived": ["Berlin", {"city": "Austin", "admin": "Texas", "country": "United States"}],
		"countries_derived": ["United States"],
		"remote_derived": true
	}`
	var r RawJob
	if err := json.Unmarshal([]byte(in), &r); err != nil {
		t.Fatal(err)
	}
	if r.Title != "SRE" {
		t.Errorf("Title = %q", r.Title)
	}
	if len(r.Locations) != 1 || r.Locations[0].City != "Austin" {
		t.Errorf("Locations = %+v; want only the object entry", r.Locations)
	}
	if r.RemoteDerived != true {
		t.Errorf("RemoteDerived = %v", r.RemoteDerived)
	}
}

func TestRawJobBatchToleratesFieldTypeDrift(t *testing.T) {
	in := `[
		{"id": 1, "title": "SRE", "remote_derived": true, "ai_taxonomies_a": ["Software"]},
		{"id": 2, "title": "SWE", "remote_derived": "yes", "ai_taxonomies_a": "Software",
		 "ai_work_arrangement": 3, "countries_derived": "Germany", "date_posted": 20260101,
		 "organization": {"name": "Acme"}}
	]`
	var batch []RawJob
	if err := json.Unmarshal([]byte(in), &batch); err != nil {
		t.Fatalf("one odd record must not fail the batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("len = %d; want 2", len(batch))
	}

	second := batch[1]
	if second.ID == nil || *second.ID != "2" || second.Title != "SWE" {
		t.Errorf("identity fields lost: id=%v title=%q", second.ID, second.Title)
	}
	if second.RemoteDerived != "yes" || second.AITaxonomies != "Software" {
		t.Errorf("metadata fields should keep the sent value: %v %v", second.RemoteDerived, second.AITaxonomies)
	}
	if second.AIWorkArrangement != float64(3) {
		t.Errorf("AIWorkArrangement = %#v", second.AIWorkArrangement)
	}
	if second.Countries != nil {
		t.Errorf("Countries = %v; want nil for a non-list", second.Countries)
	}
	if second.DatePosted != "20260101" {
		t.Errorf("DatePosted = %q; want the number as text", second.DatePosted)
	}
	if second.Organization != "" {
		t.Errorf("Organization = %q; want empty for an object", second.Organization)
	}
}

func TestSignalRow(t *testing.T) {
	src := "https://acme.example/jobs/1"
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	row := Signal{
		AccountName: "Acme", Kind: SignalNewJob, Title: "Acme posted: SRE", OccurredAt: at,
		StrengthScore: 40, SourceURL: &src, JobUID: "u1", Metadata: map[string]any{"job_uid": "u1"},
	}.Row()

	if len(row) != len(SignalColumns) {
		t.Errorf("Row has %d columns; want %d", len(row), len(SignalColumns))
	}
	for _, c := range SignalColumns {
		if _, ok := row[c]; !ok {
			t.Errorf("Row missing column %q", c)
		}
	}
	if got := row["occurred_at"].(time.Time); got.Location() != time.UTC || !got.Equal(at) {
		t.Errorf("occurred_at = %v; want the same instant in UTC", got)
	}
	if row["metadata"] != `{"job_uid":"u1"}` {
		t.Errorf("metadata = %v", row["metadata"])
	}
	if row["signal_type"] != "NEW_JOB" {
		t.Errorf("signal_type = %v", row["signal_type"])
	}
}

func TestRunTotalsAdd(t *testing.T) {
	a := RunTotals{Entities: 1, NewSignals: 2, SignalBatchesDropped: 1}
	a.Add(RunTotals{Entities: 1, RemovedSignals: 3, RemovalsDeferred: 1})
	want := RunTotals{Entities: 2, NewSignals: 2, RemovedSignals: 3, RemovalsDeferred: 1, SignalBatchesDropped: 1}
	if a != want {
		t.Errorf("Add = %+v; want %+v", a, want)
	}
}

func TestMetadataJSONNil(t *testing.T) {
	if got := string(JobPost{}.MetadataJSON()); got != "{}" {
		t.Errorf("MetadataJSON() = %s; want {}", got)
	}
}

func strp(s string) *string { return &s }
