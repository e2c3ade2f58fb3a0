package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// RotationMode selects which subtemplates a rotation writes
type RotationMode string

const (
	ModeSingle        RotationMode = "single"
	ModeDouble        RotationMode = "double"
	ModeElement       RotationMode = "element"
	ModeElementDouble RotationMode = "element-double"
	ModeRateUp        RotationMode = "rateup"
)

// RotationCommand is the command that owns a set of subtemplates
type RotationCommand string

const (
	CommandPromo  RotationCommand = "promo"
	CommandRateUp RotationCommand = "rateup"
)

// ParseRotationMode maps a command-line mode to a RotationMode
func ParseRotationMode(s string) (RotationMode, error) {
	m := RotationMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeSingle, ModeDouble, ModeElement, ModeElementDouble, ModeRateUp:
		return m, nil
	}
	return "", validationErrorf("unknown rotation mode %q", s)
}

// Command returns the command that issues this mode
func (m RotationMode) Command() RotationCommand {
	if m == ModeRateUp {
		return CommandRateUp
	}
	return CommandPromo
}

func (m RotationMode) double() bool  { return m == ModeDouble || m == ModeElementDouble }
func (m RotationMode) element() bool { return m == ModeElement || m == ModeElementDouble }

// Subtemplate names below the configured prefix
const (
	pageBanners       = "Banners"
	pageElement       = "Element"
	pageEndDate       = "EndDate"
	pagePromoMode     = "PromoMode"
	pageRateUp        = "RateUp"
	pageRateUpEndDate = "RateUpEndDate"
)

// OwnedPages returns the subtemplates cmd may write. The promo and rate-up sets
// are disjoint; EndDate belongs to promo only.
func OwnedPages(cmd RotationCommand, prefix string) mapset.Set[string] {
	var names []string
	switch cmd {
	case CommandPromo:
		names = []string{pageBanners, pageElement, pageEndDate, pagePromoMode}
	case CommandRateUp:
		names = []string{pageRateUp, pageRateUpEndDate}
	}
	owned := mapset.NewSet[string]()
	for _, n := range names {
		owned.Add(subtemplate(prefix, n))
	}
	return owned
}

func subtemplate(prefix, name string) string {
	return normalizeTitle(strings.TrimSuffix(prefix, "/") + "/" + name)
}

// SaveRank orders the writes of one plan
type SaveRank int

const (
	RankContent SaveRank = iota
	RankEndDate
	RankMode
)

// PageEdit replaces the whole body of one subtemplate
type PageEdit struct {
	Title string
	Body  string
	Rank  SaveRank
}

// BannerGroup is one side of a promo. Count 0 probes until the first missing
// banner; a positive count requires every banner in 1..Count to exist.
type BannerGroup struct {
	ID    string
	Count int
}

// RotationParams are the validated inputs of one rotation command
type RotationParams struct {
	Mode         RotationMode
	End          time.Time
	Left         BannerGroup
	Right        *BannerGroup
	ElementStart Element
}

// RotationRow is one day of the rendered schedule
type RotationRow struct {
	Day     int
	Start   time.Time
	Element Element
	Left    string
	Right   string
}

// RotationPlan is the full, ordered set of writes for one rotation
type RotationPlan struct {
	Command RotationCommand
	Mode    RotationMode
	Edits   []PageEdit
	Rows    []RotationRow
}

// Titles lists the subtemplates the plan touches in save order
func (p RotationPlan) Titles() []string {
	titles := make([]string, len(p.Edits))
	for i, e := range p.Edits {
		titles[i] = e.Title
	}
	return titles
}

// RotationResult reports what a rotation wrote
type RotationResult struct {
	PagesUpdated []string
	Table        []RotationRow
	Plan         RotationPlan
}

// RotationScheduler validates rotation inputs against the wiki, derives the
// edit plan and applies it in save order.
type RotationScheduler struct {
	gate     *RunGate
	wiki     Wiki
	prefix   string
	loc      *time.Location
	maxIndex int
	logger   *zap.Logger
}

// NewRotationScheduler creates a scheduler sharing gate with the upload runs
func NewRotationScheduler(gate *RunGate, wiki Wiki, prefix string, loc *time.Location, maxIndex int, logger *zap.Logger) *RotationScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &RotationScheduler{
		gate:     gate,
		wiki:     wiki,
		prefix:   prefix,
		loc:      loc,
		maxIndex: maxIndex,
		logger:   logger,
	}
}

// RunRotation takes the run gate and applies the rotation described by p
func (s *RotationScheduler) RunRotation(ctx context.Context, p RotationParams, sink ProgressSink) (RotationResult, error) {
	if err := p.validate(s.maxIndex); err != nil {
		return RotationResult{}, err
	}
	tok, err := s.gate.TryAcquire("rotation " + string(p.Mode))
	if err != nil {
		return RotationResult{}, err
	}
	defer tok.Release()
	return s.Apply(ctx, tok, p, sink)
}

// Apply runs validate, resolve, plan and write under an already held token.
// Any failure before the first write leaves every subtemplate untouched; a
// failed write aborts the writes after it.
func (s *RotationScheduler) Apply(ctx context.Context, tok *RunToken, p RotationParams, sink ProgressSink) (RotationResult, error) {
	if err := tok.check(s.gate); err != nil {
		s.logger.DPanic("rotation without a valid token", zap.Error(err))
		return RotationResult{}, err
	}
	if sink == nil {
		sink = discardSink{}
	}
	if err := p.validate(s.maxIndex); err != nil {
		return RotationResult{}, err
	}

	runID := uuid.NewString()
	started := time.Now()
	log := s.logger.With(zap.String("run_id", runID), zap.String("mode", string(p.Mode)))
	emit := func(stage ProgressStage, current string, done, total int, err error) {
		sink.Emit(ProgressEvent{
			RunID:     runID,
			Operation: "rotation " + string(p.Mode),
			Stage:     stage,
			Current:   current,
			Processed: done,
			Total:     total,
			Elapsed:   time.Since(started),
			Err:       err,
		})
	}
	emit(StageStarting, "", 0, 0, nil)

	left, right, err := s.resolveGroups(ctx, p)
	if err != nil {
		log.Warn("rotation validation failed", zap.Error(err))
		emit(StageFailed, "", 0, 0, err)
		return RotationResult{}, err
	}

	plan := s.buildPlan(p, left, right)
	if err := checkPlan(plan, s.prefix); err != nil {
		log.DPanic("rotation plan rejected", zap.Error(err))
		emit(StageFailed, "", 0, len(plan.Edits), err)
		return RotationResult{Plan: plan}, err
	}

	result := RotationResult{Table: plan.Rows, Plan: plan}
	for i, edit := range plan.Edits {
		emit(StageProcessing, edit.Title, i, len(plan.Edits), nil)
		if err := ctx.Err(); err != nil {
			emit(StageFailed, edit.Title, i, len(plan.Edits), err)
			return result, fmt.Errorf("rotation cancelled before %s: %w", edit.Title, err)
		}
		summary := fmt.Sprintf("Update %s rotation", p.Mode)
		if err := s.wiki.SavePage(ctx, edit.Title, edit.Body, summary); err != nil {
			err = fmt.Errorf("saving %s: %w", edit.Title, transient(err))
			log.Error("rotation write failed, remaining writes skipped",
				zap.String("title", edit.Title),
				zap.Strings("skipped", plan.Titles()[i+1:]),
				zap.Error(err))
			emit(StageFailed, edit.Title, i, len(plan.Edits), err)
			return result, err
		}
		result.PagesUpdated = append(result.PagesUpdated, edit.Title)
		log.Info("subtemplate saved", zap.String("title", edit.Title))
	}
	emit(StageCompleted, "", len(plan.Edits), len(plan.Edits), nil)
	log.Info("rotation completed", zap.Strings("pages", result.PagesUpdated), zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (p RotationParams) validate(maxIndex int) error {
	var errs *multierror.Error
	switch p.Mode {
	case ModeSingle, ModeDouble, ModeElement, ModeElementDouble, ModeRateUp:
	default:
		return validationErrorf("unknown rotation mode %q", p.Mode)
	}
	if p.End.IsZero() {
		errs = multierror.Append(errs, validationErrorf("end date is required"))
	}
	check := func(side string, g BannerGroup) {
		if NormalizeBannerID(g.ID) == "" {
			errs = multierror.Append(errs, validationErrorf("%s banner id is required", side))
		}
		if g.Count < 0 || g.Count > maxIndex {
			errs = multierror.Append(errs, validationErrorf("%s banner count %d is outside 0..%d", side, g.Count, maxIndex))
		}
	}
	check("left", p.Left)
	switch {
	case p.Mode.double() && p.Right == nil:
		errs = multierror.Append(errs, validationErrorf("%s mode needs a right banner group", p.Mode))
	case !p.Mode.double() && p.Right != nil:
		errs = multierror.Append(errs, validationErrorf("%s mode takes a single banner group", p.Mode))
	case p.Right != nil:
		check("right", *p.Right)
	}
	if p.Mode.element() {
		if elementIndex(p.ElementStart) < 0 {
			errs = multierror.Append(errs, validationErrorf("%s mode needs a starting element", p.Mode))
		}
	} else if p.ElementStart != "" {
		errs = multierror.Append(errs, validationErrorf("%s mode does not rotate elements", p.Mode))
	}
	// counts are known up front only when both are explicit
	if p.Mode == ModeElementDouble && p.Right != nil && p.Left.Count > 0 && p.Right.Count > 0 && p.Left.Count != p.Right.Count {
		errs = multierror.Append(errs, validationErrorf("element-double needs matching counts, got %d and %d", p.Left.Count, p.Right.Count))
	}
	return errs.ErrorOrNil()
}

func bannerFile(id string, index int) string {
	return fmt.Sprintf("banner_%s_%d.png", NormalizeBannerID(id), index)
}

// resolveGroups confirms the banners of both sides on the wiki. Failures of
// both sides are reported together.
func (s *RotationScheduler) resolveGroups(ctx context.Context, p RotationParams) (left, right int, err error) {
	var errs *multierror.Error
	left, lerr := s.confirm(ctx, "left", p.Left)
	errs = multierror.Append(errs, lerr)
	if p.Right != nil {
		var rerr error
		right, rerr = s.confirm(ctx, "right", *p.Right)
		errs = multierror.Append(errs, rerr)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return 0, 0, err
	}
	if p.Mode == ModeElementDouble && left != right {
		return 0, 0, validationErrorf("element-double needs matching counts, left has %d and right has %d", left, right)
	}
	return left, right, nil
}

func (s *RotationScheduler) confirm(ctx context.Context, side string, g BannerGroup) (int, error) {
	exists := func(ctx context.Context, i int) (bool, error) {
		return FileExists(ctx, s.wiki, bannerFile(g.ID, i))
	}
	found, err := Probe(ctx, exists, ProbeRequest{
		Start:    1,
		MaxIndex: s.maxIndex,
		Count:    g.Count,
		Validate: g.Count > 0,
	})
	if err != nil {
		return 0, fmt.Errorf("%s banner %s: %w", side, g.ID, err)
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("%s banner %s: %w: %s does not exist", side, g.ID, ErrNotFound, fileTitle(bannerFile(g.ID, 1)))
	}
	return len(found), nil
}

func (s *RotationScheduler) buildPlan(p RotationParams, left, right int) RotationPlan {
	plan := RotationPlan{Command: p.Mode.Command(), Mode: p.Mode}
	end := p.End.In(s.loc)

	days := slices.Collect(ElementDays(p.ElementStart, left, p.Mode.double()))
	for _, d := range days {
		row := RotationRow{
			Day:   d.Offset + 1,
			Start: end.Add(-time.Duration(left-d.Offset) * 24 * time.Hour),
			Left:  bannerFile(p.Left.ID, d.Left),
		}
		if p.Mode.element() {
			row.Element = d.Element
		}
		if p.Right != nil && d.Right <= right {
			row.Right = bannerFile(p.Right.ID, d.Right)
		}
		plan.Rows = append(plan.Rows, row)
	}

	add := func(name, body string, rank SaveRank) {
		plan.Edits = append(plan.Edits, PageEdit{Title: subtemplate(s.prefix, name), Body: onlyInclude(body), Rank: rank})
	}
	switch plan.Command {
	case CommandRateUp:
		add(pageRateUp, bannerList(p.Left.ID, left), RankContent)
		add(pageRateUpEndDate, end.Format(time.RFC3339), RankEndDate)
	case CommandPromo:
		add(pageBanners, bannersBody(p, left, right), RankContent)
		if p.Mode.element() {
			add(pageElement, elementBody(plan.Rows), RankContent)
		}
		add(pageEndDate, end.Format(time.RFC3339), RankEndDate)
		add(pagePromoMode, string(p.Mode), RankMode)
	}
	return plan
}

func onlyInclude(body string) string {
	return "<onlyinclude>" + body + "</onlyinclude>"
}

func bannerList(id string, count int) string {
	files := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		files = append(files, bannerFile(id, i))
	}
	return strings.Join(files, ";")
}

func bannersBody(p RotationParams, left, right int) string {
	var b strings.Builder
	b.WriteString("{{#switch:{{{1|left}}}\n")
	fmt.Fprintf(&b, "|left=%s\n", bannerList(p.Left.ID, left))
	if p.Right != nil {
		fmt.Fprintf(&b, "|right=%s\n", bannerList(p.Right.ID, right))
	}
	b.WriteString("}}")
	return b.String()
}

func elementBody(rows []RotationRow) string {
	var b strings.Builder
	b.WriteString("{{#switch:{{{1|}}}\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "|%d=%s\n|%dstart=%d\n", r.Day, r.Element, r.Day, r.Start.Unix())
	}
	b.WriteString("}}")
	return b.String()
}

// checkPlan rejects plans that write outside the command's subtemplates or
// break the content, end date, mode save order.
func checkPlan(plan RotationPlan, prefix string) error {
	owned := OwnedPages(plan.Command, prefix)
	var errs *multierror.Error
	last := RankContent
	for _, e := range plan.Edits {
		if !owned.Contains(e.Title) {
			errs = multierror.Append(errs, invariantErrorf("%s command may not write %s", plan.Command, e.Title))
		}
		if e.Rank < last {
			errs = multierror.Append(errs, invariantErrorf("%s saved after a later-ranked page", e.Title))
		}
		last = e.Rank
	}
	return errs.ErrorOrNil()
}
