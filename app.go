package main

import (
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// App holds the wired collaborators shared by every command
type App struct {
	Settings  *Settings
	Env       Environment
	Logger    *zap.Logger
	Wiki      Wiki
	Client    *MediaWikiClient
	Uploads   *UploadProcessor
	Rotations *RotationScheduler
	cache     *PageCache
}

// NewApp loads configuration and wires the pipelines. Close releases the cache.
func NewApp(settings *Settings, env Environment, logger *zap.Logger) (*App, error) {
	var cache *PageCache
	if settings.Cache.Path != "" {
		c, err := OpenPageCache(settings.Cache.Path)
		if err != nil {
			logger.Warn("page cache disabled", zap.String("path", settings.Cache.Path), zap.Error(err))
		} else {
			cache = c
		}
	}

	client, err := NewMediaWikiClient(MediaWikiOptions{
		APIURL:    settings.Wiki.APIURL,
		UserAgent: settings.Wiki.UserAgent,
		Username:  env.WikiUsername,
		Password:  env.WikiPassword,
		EditDelay: settings.Wiki.EditDelay,
		MaxLag:    settings.Wiki.MaxLag,
		Retries:   settings.Wiki.Retries,
		Timeout:   settings.Wiki.Timeout,
	}, cache, logger.Named("wiki"))
	if err != nil {
		return nil, fmt.Errorf("creating wiki client: %w", err)
	}

	var wiki Wiki = client
	if env.DryRun {
		logger.Info("dry run: wiki writes are logged only")
		wiki = NewDryRunWiki(client, logger.Named("dryrun"))
	}

	cdnClient, err := newCDNClient(settings, env)
	if err != nil {
		return nil, err
	}
	fetcher := NewContentFetcher(cdnClient, settings.CDN.UserAgent, settings.CDN.Retries, logger.Named("cdn"))

	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}

	gate := NewRunGate()
	coordinator := NewCoordinator(gate, fetcher, wiki, settings.ConflictPolicies(), settings.Upload.ProgressInterval, logger.Named("upload"))
	uploads := NewUploadProcessor(gate, NewResolver(settings.CDN.BaseURL), fetcher, wiki, coordinator, ProcessorOptions{
		Concurrency:    settings.CDN.Concurrency,
		MaxBannerIndex: settings.Upload.MaxBannerIndex,
		MaxStatusIndex: settings.Upload.MaxStatusIndex,
	}, logger.Named("discovery"))
	rotations := NewRotationScheduler(gate, wiki, settings.Rotation.TemplatePrefix, loc, settings.Upload.MaxBannerIndex, logger.Named("rotation"))

	return &App{
		Settings:  settings,
		Env:       env,
		Logger:    logger,
		Wiki:      wiki,
		Client:    client,
		Uploads:   uploads,
		Rotations: rotations,
		cache:     cache,
	}, nil
}

// newCDNClient builds the CDN HTTP client, routed through PROXY_URL when set
func newCDNClient(settings *Settings, env Environment) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if env.ProxyURL != "" {
		u, err := url.Parse(env.ProxyURL)
		if err != nil {
			return nil, validationErrorf("PROXY_URL: %v", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport, Timeout: settings.CDN.Timeout}, nil
}

// Close releases resources held by the app
func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Logger.Warn("closing page cache", zap.Error(err))
		}
	}
}
