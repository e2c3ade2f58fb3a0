package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UploadRequest is one validated upload command
type UploadRequest struct {
	Family   AssetFamily
	ID       string // banner, event, status, item or enemy identifier
	Name     string // display name used for redirects
	ItemType string
	Page     string // wiki page scanned by extraction families
	Count    int    // explicit index count; 0 probes until the first miss
}

// ProcessorOptions bounds discovery
type ProcessorOptions struct {
	Concurrency    int
	MaxBannerIndex int
	MaxStatusIndex int
}

// UploadProcessor runs the upload pipeline: resolve names, discover what
// exists, then hand the ordered jobs to the coordinator.
type UploadProcessor struct {
	gate        *RunGate
	resolver    *Resolver
	source      ContentSource
	wiki        Wiki
	coordinator *Coordinator
	opts        ProcessorOptions
	logger      *zap.Logger
}

// NewUploadProcessor creates a processor. gate is shared with rotation runs.
func NewUploadProcessor(gate *RunGate, resolver *Resolver, source ContentSource, wiki Wiki, coordinator *Coordinator, opts ProcessorOptions, logger *zap.Logger) *UploadProcessor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.MaxBannerIndex < 1 {
		opts.MaxBannerIndex = 12
	}
	if opts.MaxStatusIndex < 1 {
		opts.MaxStatusIndex = 10
	}
	return &UploadProcessor{
		gate:        gate,
		resolver:    resolver,
		source:      source,
		wiki:        wiki,
		coordinator: coordinator,
		opts:        opts,
		logger:      logger,
	}
}

func (p *UploadProcessor) maxIndex(f AssetFamily) int {
	if f == FamilyStatusIcon {
		return p.opts.MaxStatusIndex
	}
	return p.opts.MaxBannerIndex
}

// indexed reports whether req enumerates numbered sources
func indexed(req UploadRequest) bool {
	if req.Family == FamilyStatusIcon {
		_, ranged := ParseStatusID(req.ID)
		return ranged
	}
	return req.Family.Strategy() == DiscoverIndexed
}

func (p *UploadProcessor) validate(req UploadRequest) error {
	if _, ok := familyRules[req.Family]; !ok {
		return validationErrorf("unknown asset family %q", req.Family)
	}
	if req.Family.Strategy() == DiscoverExtracted {
		if strings.TrimSpace(req.Page) == "" {
			return validationErrorf("%s upload needs a page name", req.Family)
		}
		return nil
	}
	if strings.TrimSpace(req.ID) == "" {
		return validationErrorf("%s upload needs an identifier", req.Family)
	}
	if req.Count < 0 || req.Count > p.maxIndex(req.Family) {
		return validationErrorf("count %d is outside 0..%d", req.Count, p.maxIndex(req.Family))
	}
	return nil
}

// RunUpload acquires the run gate, discovers the jobs for req and processes
// them. A busy gate fails before any fetch.
func (p *UploadProcessor) RunUpload(ctx context.Context, req UploadRequest, sink ProgressSink) (RunSummary, error) {
	if err := p.validate(req); err != nil {
		return RunSummary{Family: req.Family}, err
	}
	tok, err := p.gate.TryAcquire(string(req.Family) + " upload")
	if err != nil {
		return RunSummary{Family: req.Family}, err
	}
	defer tok.Release()

	jobs, err := p.discover(ctx, req)
	if err != nil {
		p.logger.Warn("discovery failed", zap.String("family", string(req.Family)), zap.Error(err))
		return RunSummary{Family: req.Family}, err
	}
	return p.coordinator.Run(ctx, tok, req.Family, jobs, sink)
}

func (p *UploadProcessor) discover(ctx context.Context, req UploadRequest) ([]PreparedJob, error) {
	switch {
	case indexed(req):
		jobs, err := p.discoverIndexed(ctx, req)
		if err != nil || req.Family != FamilyStatusIcon {
			return jobs, err
		}
		// a ranged status run starts with the unnumbered icon
		base, _ := ParseStatusID(req.ID)
		assets, err := p.resolver.Resolve(req.Family, ResolveParams{ID: base, Name: req.Name})
		if err != nil {
			return nil, err
		}
		head := p.prefetch(ctx, req.Family, assets)
		head[0].Job.Index = 0
		return append(head, jobs...), nil
	case req.Family.Strategy() == DiscoverExtracted:
		return p.discoverExtracted(ctx, req)
	default:
		assets, err := p.resolver.Resolve(req.Family, ResolveParams{ID: req.ID, Name: req.Name, ItemType: req.ItemType})
		if err != nil {
			return nil, err
		}
		jobs := p.prefetch(ctx, req.Family, assets)
		for _, j := range jobs {
			if !j.Missing {
				return jobs, nil
			}
		}
		return nil, fmt.Errorf("%w: no %s source exists for %s", ErrNotFound, req.Family, req.ID)
	}
}

// discoverIndexed probes 1, 2, ... keeping the fetched bytes so nothing is
// downloaded twice. An explicit count skips probing and fetches the range.
func (p *UploadProcessor) discoverIndexed(ctx context.Context, req UploadRequest) ([]PreparedJob, error) {
	resolve := func(i int) (ResolvedAsset, error) {
		assets, err := p.resolver.Resolve(req.Family, ResolveParams{ID: req.ID, Name: req.Name, Index: i})
		if err != nil {
			return ResolvedAsset{}, err
		}
		return assets[0], nil
	}

	if req.Count > 0 {
		assets := make([]ResolvedAsset, 0, req.Count)
		for i := range Indices(1, req.Count) {
			a, err := resolve(i)
			if err != nil {
				return nil, err
			}
			assets = append(assets, a)
		}
		return p.prefetch(ctx, req.Family, assets), nil
	}

	var mu sync.Mutex
	fetched := map[int]PreparedJob{}
	exists := func(ctx context.Context, i int) (bool, error) {
		a, err := resolve(i)
		if err != nil {
			return false, err
		}
		data, chosen, err := p.fetchFirst(ctx, a)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		mu.Lock()
		fetched[i] = PreparedJob{Job: newJob(req.Family, i, chosen), Payload: data}
		mu.Unlock()
		return true, nil
	}

	found, err := Probe(ctx, exists, ProbeRequest{Start: 1, MaxIndex: p.maxIndex(req.Family)})
	var probeErr *ProbeError
	if err != nil && (len(found) == 0 || !errors.As(err, &probeErr)) {
		return nil, err
	}

	jobs := make([]PreparedJob, 0, len(found)+1)
	for _, i := range found {
		jobs = append(jobs, fetched[i])
	}
	if probeErr != nil {
		// the sequence stops at the failed index; record it instead of guessing
		a, rerr := resolve(probeErr.Index)
		if rerr != nil {
			return nil, rerr
		}
		jobs = append(jobs, PreparedJob{Job: newJob(req.Family, probeErr.Index, a), FetchErr: probeErr.Err})
	}
	p.logger.Debug("probe finished", zap.String("family", string(req.Family)), zap.String("id", req.ID), zap.Ints("found", found))
	return jobs, nil
}

func (p *UploadProcessor) discoverExtracted(ctx context.Context, req UploadRequest) ([]PreparedJob, error) {
	text, err := p.wiki.PageContent(ctx, req.Page)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.Page, err)
	}

	var assets []ResolvedAsset
	for _, ex := range ExtractAssets(req.Family, normalizeTitle(req.Page), text) {
		resolved, err := p.resolver.Resolve(req.Family, ResolveParams{ID: ex.ID, Name: ex.Name, ItemType: ex.ItemType})
		if err != nil {
			p.logger.Warn("skipping template", zap.String("page", req.Page), zap.String("id", ex.ID), zap.Error(err))
			continue
		}
		assets = append(assets, resolved...)
	}
	if len(assets) == 0 {
		p.logger.Info("no templates to upload", zap.String("page", req.Page), zap.String("family", string(req.Family)))
		return nil, nil
	}
	return p.prefetch(ctx, req.Family, assets), nil
}

// prefetch downloads assets with bounded concurrency. Results stay in input
// order; a missing or failing source is recorded on its job.
func (p *UploadProcessor) prefetch(ctx context.Context, family AssetFamily, assets []ResolvedAsset) []PreparedJob {
	jobs := make([]PreparedJob, len(assets))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, a := range assets {
		g.Go(func() error {
			data, chosen, err := p.fetchFirst(ctx, a)
			pj := PreparedJob{Job: newJob(family, i+1, chosen), Payload: data}
			switch {
			case errors.Is(err, ErrNotFound):
				pj.Missing = true
			case err != nil:
				pj.FetchErr = err
			}
			jobs[i] = pj
			return nil
		})
	}
	_ = g.Wait()
	return jobs
}

// fetchFirst fetches a, falling back to its alternates on a miss
func (p *UploadProcessor) fetchFirst(ctx context.Context, a ResolvedAsset) ([]byte, ResolvedAsset, error) {
	candidates := append([]ResolvedAsset{a}, a.Alternates...)
	for _, c := range candidates {
		data, err := p.source.Fetch(ctx, c.SourceURL)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, a, err
		}
		return data, c, nil
	}
	return nil, a, fmt.Errorf("%w: %s", ErrNotFound, a.SourceURL)
}

func newJob(family AssetFamily, index int, a ResolvedAsset) AssetJob {
	return AssetJob{
		Family:         family,
		Index:          index,
		Identifier:     a.Identifier,
		SourceURL:      a.SourceURL,
		CanonicalTitle: a.CanonicalTitle,
		RedirectTitles: a.RedirectTitles,
		Categories:     a.Categories,
	}
}
