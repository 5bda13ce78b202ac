package services

import (
	"testing"

	"job-signals/models"
)

func TestNewJobSignal(t *testing.T) {
	loc := "Berlin, Germany"
	post := models.JobPost{JobUID: "uid-1", Title: "SRE", Location: &loc, SourceURL: "https://acme/jobs/1"}

	s := Emitter{}.NewJob("Acme", post, runTime)

	if s.Kind != models.SignalNewJob {
		t.Errorf("Kind: got %s", s.Kind)
	}
	if want := "Acme posted: SRE (Berlin, Germany)"; s.Title != want {
		t.Errorf("Title: got %q, want %q", s.Title, want)
	}
	if s.StrengthScore != NewJobStrength {
		t.Errorf("StrengthScore: got %d", s.StrengthScore)
	}
	if s.SourceURL == nil || *s.SourceURL != "https://acme/jobs/1" {
		t.Errorf("SourceURL: got %v", s.SourceURL)
	}
	if s.JobUID != "uid-1" || s.Metadata["job_uid"] != "uid-1" {
		t.Errorf("job_uid not carried: %+v", s)
	}
	if s.Metadata["location"] != loc || s.Metadata["title"] != "SRE" {
		t.Errorf("metadata: got %v", s.Metadata)
	}
}

func TestNewJobSignalWithoutLocation(t *testing.T) {
	s := Emitter{}.NewJob("Acme", models.JobPost{JobUID: "uid-2", Title: "Designer"}, runTime)
	if want := "Acme posted: Designer"; s.Title != want {
		t.Errorf("Title: got %q, want %q", s.Title, want)
	}
	if s.SourceURL != nil {
		t.Errorf("SourceURL: got %q, want nil", *s.SourceURL)
	}
}

func TestRemovedSignal(t *testing.T) {
	s := Emitter{}.Removed("Acme", "uid-9", runTime)
	if s.Kind != models.SignalJobRemoved {
		t.Errorf("Kind: got %s", s.Kind)
	}
	if want := "Acme job removed/expired: uid-9"; s.Title != want {
		t.Errorf("Title: got %q, want %q", s.Title, want)
	}
	if s.StrengthScore != RemovedJobStrength || RemovedJobStrength >= NewJobStrength {
		t.Errorf("removal strength should be %d and below NEW_JOB", RemovedJobStrength)
	}
}

func TestBulkSignalsOnePerID(t *testing.T) {
	posts := []models.JobPost{{JobUID: "a", Title: "A"}, {JobUID: "b", Title: "B"}, {JobUID: "c", Title: "C"}}

	news := Emitter{}.NewJobs("Acme", posts, []string{"c", "a"}, runTime)
	if len(news) != 2 || news[0].JobUID != "c" || news[1].JobUID != "a" {
		t.Errorf("NewJobs: got %+v", news)
	}

	removed := Emitter{}.RemovedJobs("Acme", []string{"x", "y", "z"}, runTime)
	if len(removed) != 3 {
		t.Errorf("RemovedJobs: got %d, want 3", len(removed))
	}
}
