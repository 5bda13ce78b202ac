package models

import "time"

// EntityResult is the outcome of one entity pass.
type EntityResult struct {
	Name   string
	Totals RunTotals
}

// RunReport is the end-of-run summary.
type RunReport struct {
	Started        time.Time
	Finished       time.Time
	Source         string
	Backend        string
	DryRun         bool
	Totals         RunTotals
	TopMovers      []EntityResult // entities with the most signals, descending
	DroppedColumns []string       // signal columns the backend rejected this run
	Failure        string         // error that stopped the run, if any
}
