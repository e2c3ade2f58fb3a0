package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultProgressInterval = 15 * time.Second

// PreparedJob is a job plus whatever discovery already learned about its source
type PreparedJob struct {
	Job      AssetJob
	Payload  []byte // bytes fetched while probing; nil means fetch on demand
	Missing  bool   // source known to be absent
	FetchErr error  // source check failed during discovery
}

// Coordinator processes the jobs of one upload run in order, emitting progress
// at a fixed cadence and aggregating a RunSummary.
type Coordinator struct {
	gate     *RunGate
	source   ContentSource
	wiki     Wiki
	policies ConflictPolicies
	interval time.Duration
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator bound to gate
func NewCoordinator(gate *RunGate, source ContentSource, wiki Wiki, policies ConflictPolicies, interval time.Duration, logger *zap.Logger) *Coordinator {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	if policies == nil {
		policies = DefaultConflictPolicies()
	}
	return &Coordinator{
		gate:     gate,
		source:   source,
		wiki:     wiki,
		policies: policies,
		interval: interval,
		logger:   logger,
	}
}

type runState struct {
	mu      sync.Mutex
	summary RunSummary
	current string
	total   int
	started time.Time
}

func (s *runState) event(stage ProgressStage) ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ProgressEvent{
		RunID:     s.summary.RunID,
		Operation: string(s.summary.Family),
		Stage:     stage,
		Current:   s.current,
		Processed: s.summary.Processed,
		Uploaded:  s.summary.Uploaded,
		Duplicate: s.summary.Duplicate,
		Failed:    s.summary.Failed,
		Total:     s.total,
		Elapsed:   time.Since(s.started),
	}
}

func (s *runState) record(o UploadOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := &s.summary
	sum.Processed++
	sum.Outcomes = append(sum.Outcomes, o)
	switch o.Status {
	case OutcomeUploaded, OutcomeOverwritten:
		sum.Uploaded++
	case OutcomeDuplicate:
		sum.Duplicate++
	case OutcomeFailed:
		sum.Failed++
	case OutcomeSkipped:
		sum.Skipped++
	}
	if o.Status == OutcomeUploaded || o.Status == OutcomeOverwritten || o.Status == OutcomeDuplicate {
		sum.CanonicalTitles = append(sum.CanonicalTitles, o.FinalTitle)
		sum.RedirectTitles = append(sum.RedirectTitles, o.Redirects...)
	}
}

// Run processes jobs strictly in the given order. A failing job is recorded and
// the run continues. The terminal event carrying the summary is always emitted.
func (c *Coordinator) Run(ctx context.Context, tok *RunToken, family AssetFamily, jobs []PreparedJob, sink ProgressSink) (RunSummary, error) {
	if err := tok.check(c.gate); err != nil {
		c.logger.DPanic("upload run without a valid token", zap.Error(err))
		return RunSummary{}, err
	}
	if sink == nil {
		sink = discardSink{}
	}

	state := &runState{
		summary: RunSummary{RunID: uuid.NewString(), Family: family},
		total:   len(jobs),
		started: time.Now(),
	}
	log := c.logger.With(zap.String("run_id", state.summary.RunID), zap.String("family", string(family)))
	log.Info("upload run started", zap.Int("jobs", len(jobs)))
	sink.Emit(state.event(StageStarting))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sink.Emit(state.event(StageProcessing))
			}
		}
	}()

	for _, pj := range jobs {
		state.mu.Lock()
		state.current = pj.Job.CanonicalTitle
		state.mu.Unlock()

		outcome := c.process(ctx, family, pj)
		switch outcome.Status {
		case OutcomeFailed:
			log.Warn("job failed", zap.String("title", pj.Job.CanonicalTitle), zap.String("reason", outcome.Reason))
		default:
			log.Info("job done", zap.String("title", outcome.FinalTitle), zap.String("status", string(outcome.Status)))
		}
		state.record(outcome)
	}

	close(stop)
	wg.Wait()

	state.mu.Lock()
	state.current = ""
	state.summary.Elapsed = time.Since(state.started)
	summary := state.summary
	state.mu.Unlock()

	final := state.event(StageCompleted)
	final.Summary = &summary
	sink.Emit(final)
	log.Info("upload run completed",
		zap.Int("processed", summary.Processed),
		zap.Int("uploaded", summary.Uploaded),
		zap.Int("duplicate", summary.Duplicate),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (c *Coordinator) process(ctx context.Context, family AssetFamily, pj PreparedJob) UploadOutcome {
	job := pj.Job
	out := UploadOutcome{Job: job, FinalTitle: job.CanonicalTitle}
	fail := func(format string, args ...any) UploadOutcome {
		out.Status = OutcomeFailed
		out.Reason = fmt.Sprintf(format, args...)
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail("run cancelled: %v", err)
	}
	if pj.Missing {
		out.Status = OutcomeSkipped
		out.Reason = "source not found"
		return out
	}
	if pj.FetchErr != nil {
		return fail("fetching source: %v", pj.FetchErr)
	}

	payload := pj.Payload
	if payload == nil {
		data, err := c.source.Fetch(ctx, job.SourceURL)
		if errors.Is(err, ErrNotFound) {
			out.Status = OutcomeSkipped
			out.Reason = "source not found"
			return out
		}
		if err != nil {
			return fail("fetching source: %v", err)
		}
		payload = data
	}

	existing, err := c.wiki.FileInfo(ctx, job.CanonicalTitle)
	if errors.Is(err, ErrNotFound) {
		existing = nil
	} else if err != nil {
		return fail("reading %s: %v", job.CanonicalTitle, err)
	}

	decision := Decide(payload, existing, c.policies.For(family))
	if existing == nil {
		claim, err := c.claimCanonical(ctx, job, payload)
		if err != nil {
			return fail("%v", err)
		}
		if claim.identical {
			decision = DecisionDuplicate
		}
		if claim.movedFrom != "" {
			out.Reason = "moved from " + claim.movedFrom
		}
	}

	switch decision {
	case DecisionUpload, DecisionOverwrite:
		if err := c.wiki.Upload(ctx, job.CanonicalTitle, payload, fileDescription(job)); err != nil {
			return fail("uploading %s: %v", job.CanonicalTitle, err)
		}
		out.Status = OutcomeUploaded
		if decision == DecisionOverwrite {
			out.Status = OutcomeOverwritten
		}
	case DecisionDuplicate:
		out.Status = OutcomeDuplicate
		if existing != nil && !sameContent(payload, existing) {
			out.Reason = "content differs, existing file kept"
		}
	}

	// the file is in place from here on; a redirect failure is noted, not fatal
	for _, r := range job.RedirectTitles {
		if err := c.ensureRedirect(ctx, r, out.FinalTitle); err != nil {
			out.Reason = joinReason(out.Reason, fmt.Sprintf("redirect %s: %v", r, err))
			continue
		}
		out.Redirects = append(out.Redirects, r)
	}
	if err := c.flattenRedirects(ctx, out.FinalTitle); err != nil {
		c.logger.Warn("redirect cleanup failed", zap.String("title", out.FinalTitle), zap.Error(err))
	}
	return out
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

type canonicalClaim struct {
	identical bool   // the canonical title now holds the same bytes
	movedFrom string // title of a file moved onto the canonical title
}

// claimCanonical runs before uploading to a missing canonical title. A single
// live file with the same digest is moved onto the canonical title. Without
// one, a real file sitting at a redirect title is moved there so the upload
// replaces it. Several identical files are ambiguous and fail the job.
func (c *Coordinator) claimCanonical(ctx context.Context, job AssetJob, payload []byte) (canonicalClaim, error) {
	canonical := fileTitle(job.CanonicalTitle)
	candidates, err := c.wiki.FilesBySHA1(ctx, sha1Hex(payload))
	if err != nil {
		c.logger.Warn("duplicate lookup failed", zap.String("title", job.CanonicalTitle), zap.Error(err))
		candidates = nil
	}
	live := liveFiles(candidates)

	switch {
	case len(live) > 1:
		titles := make([]string, len(live))
		for i, f := range live {
			titles[i] = fileTitle(f.Title)
		}
		return canonicalClaim{}, fmt.Errorf("%d identical files already exist: %s", len(live), strings.Join(titles, ", "))
	case len(live) == 1:
		from := fileTitle(live[0].Title)
		if from == canonical {
			return canonicalClaim{identical: true}, nil
		}
		if err := c.wiki.Move(ctx, from, canonical, "Batch upload file name"); err != nil {
			return canonicalClaim{}, fmt.Errorf("moving %s: %w", from, err)
		}
		return canonicalClaim{identical: true, movedFrom: from}, nil
	}

	for _, r := range job.RedirectTitles {
		title := fileTitle(r)
		if title == canonical {
			continue
		}
		target, err := c.wiki.ResolveRedirect(ctx, title)
		if errors.Is(err, ErrNotFound) || (err == nil && target != "") {
			continue
		}
		if err != nil {
			return canonicalClaim{}, fmt.Errorf("reading %s: %w", title, err)
		}
		if err := c.wiki.Move(ctx, title, canonical, "Batch upload file name (sha1 not found)"); err != nil {
			return canonicalClaim{}, fmt.Errorf("moving %s: %w", title, err)
		}
		return canonicalClaim{movedFrom: title}, nil
	}
	return canonicalClaim{}, nil
}

// flattenRedirects points every file redirect that reaches target through
// another redirect straight at target.
func (c *Coordinator) flattenRedirects(ctx context.Context, target string) error {
	target = fileTitle(target)
	want := redirectText(target)
	seen := mapset.NewThreadUnsafeSet(target)
	pending := []string{target}
	for depth := 0; len(pending) > 0; depth++ {
		var next []string
		for _, t := range pending {
			from, err := c.wiki.RedirectsTo(ctx, t)
			if err != nil {
				return err
			}
			for _, f := range from {
				f = normalizeTitle(f)
				if !seen.Add(f) {
					continue
				}
				next = append(next, f)
				if depth == 0 {
					continue
				}
				text, err := c.wiki.PageContent(ctx, f)
				if err != nil {
					return err
				}
				if !strings.HasPrefix(text, "#REDIRECT [[File:") || text == want {
					continue
				}
				if err := c.wiki.SavePage(ctx, f, want, "Resolving double redirects"); err != nil {
					return err
				}
			}
		}
		pending = next
	}
	return nil
}

// ensureRedirect points File:from at File:to, saving only when the text differs
func (c *Coordinator) ensureRedirect(ctx context.Context, from, to string) error {
	title := fileTitle(from)
	if title == fileTitle(to) {
		return nil
	}
	want := redirectText(to)
	current, err := c.wiki.PageContent(ctx, title)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current == want {
		return nil
	}
	return c.wiki.SavePage(ctx, title, want, "Redirect to batch uploaded file")
}

// fileDescription is the category block of a new file page
func fileDescription(job AssetJob) string {
	cats := job.Categories
	if len(cats) == 0 && job.Family.rule().Category != "" {
		cats = []string{job.Family.rule().Category}
	}
	var b strings.Builder
	for _, cat := range cats {
		b.WriteString("[[Category:" + cat + "]]")
	}
	return b.String()
}
