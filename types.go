package main

import "time"

// AssetJob is one unit of upload work produced by discovery
type AssetJob struct {
	Family         AssetFamily
	Index          int    // 1-based index for indexed families (0 is a ranged run's base icon), variant position otherwise
	Identifier     string // raw CDN identifier, e.g. "summer01" or "status_1438_2"
	SourceURL      string
	CanonicalTitle string
	RedirectTitles []string
	Categories     []string // file page categories; empty uses the family category
}

// OutcomeStatus represents the result of attempting one AssetJob
type OutcomeStatus string

const (
	OutcomeUploaded    OutcomeStatus = "uploaded"
	OutcomeOverwritten OutcomeStatus = "overwritten"
	OutcomeDuplicate   OutcomeStatus = "duplicate"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeSkipped     OutcomeStatus = "skipped"
)

// UploadOutcome tracks what happened to each job
type UploadOutcome struct {
	Job        AssetJob
	Status     OutcomeStatus
	FinalTitle string   // file the redirects point at
	Redirects  []string // redirect titles now pointing at FinalTitle
	Reason     string
}

// RunSummary is the terminal artifact of an upload run. Title lists are in job order.
type RunSummary struct {
	RunID           string
	Family          AssetFamily
	Processed       int
	Uploaded        int
	Duplicate       int
	Failed          int
	Skipped         int
	CanonicalTitles []string
	RedirectTitles  []string
	Outcomes        []UploadOutcome
	Elapsed         time.Duration
}

// ProgressStage names where a run currently is
type ProgressStage string

const (
	StageStarting   ProgressStage = "starting"
	StageProcessing ProgressStage = "processing"
	StageCompleted  ProgressStage = "completed"
	StageFailed     ProgressStage = "failed"
)

// ProgressEvent is a snapshot of a running operation
type ProgressEvent struct {
	RunID     string
	Operation string
	Stage     ProgressStage
	Current   string
	Processed int
	Uploaded  int
	Duplicate int
	Failed    int
	Total     int
	Elapsed   time.Duration
	Summary   *RunSummary // set on terminal upload events
	Err       error
}

// ProgressSink receives progress events. Emit must not block.
type ProgressSink interface {
	Emit(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) Emit(e ProgressEvent) { f(e) }

type discardSink struct{}

func (discardSink) Emit(ProgressEvent) {}
