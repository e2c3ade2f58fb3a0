package main

import (
	"context"

	"go.uber.org/zap"
)

// DryRunWiki reads from the wrapped wiki and only logs writes
type DryRunWiki struct {
	Wiki
	logger *zap.Logger
}

// NewDryRunWiki wraps w so that no upload or edit reaches the wiki
func NewDryRunWiki(w Wiki, logger *zap.Logger) *DryRunWiki {
	return &DryRunWiki{Wiki: w, logger: logger.With(zap.Bool("dry_run", true))}
}

func (d *DryRunWiki) SavePage(ctx context.Context, title, content, summary string) error {
	d.logger.Info("would save page", zap.String("title", title), zap.String("summary", summary), zap.Int("bytes", len(content)))
	return nil
}

func (d *DryRunWiki) Upload(ctx context.Context, title string, data []byte, description string) error {
	d.logger.Info("would upload file", zap.String("title", fileTitle(title)), zap.Int("bytes", len(data)))
	return nil
}

func (d *DryRunWiki) Move(ctx context.Context, from, to, reason string) error {
	d.logger.Info("would move file", zap.String("from", fileTitle(from)), zap.String("to", fileTitle(to)), zap.String("reason", reason))
	return nil
}

// FilesBySHA1 reports no matches so every missing file is shown as an upload
func (d *DryRunWiki) FilesBySHA1(ctx context.Context, sha1 string) ([]RemoteFile, error) {
	d.logger.Debug("would query files by sha1", zap.String("sha1", sha1))
	return nil, nil
}
