// Package pipeline sequences the six feed stages in fixed order:
// download, extract, transform, validate, stage, upload, trigger.
// One run is one batch; the external scheduler owns retries and
// concurrency, so the driver is strictly sequential and not re-entrant.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedsync-cli/internal/archive"
	"github.com/sells-group/feedsync-cli/internal/config"
	"github.com/sells-group/feedsync-cli/internal/feed"
	"github.com/sells-group/feedsync-cli/internal/remote"
	"github.com/sells-group/feedsync-cli/internal/resilience"
	"github.com/sells-group/feedsync-cli/internal/staging"
	"github.com/sells-group/feedsync-cli/internal/transfer"
)

// Uploader pushes the staged file back to the vendor server.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) (int64, error)
	EnsureDir(ctx context.Context, remoteDir string) error
}

// ImportRunner triggers the remote import script.
type ImportRunner interface {
	RunImport(ctx context.Context) (*remote.CommandResult, error)
}

// Pipeline is the stage driver.
type Pipeline struct {
	cfg        *config.Config
	downloader transfer.Downloader
	uploader   Uploader
	trigger    ImportRunner
	writer     *staging.Writer
	rules      []feed.Rule
	now        func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, dl transfer.Downloader, up Uploader, trig ImportRunner, w *staging.Writer) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		downloader: dl,
		uploader:   up,
		trigger:    trig,
		writer:     w,
		rules:      feed.DefaultSchema(),
		now:        time.Now,
	}
}

// Run executes the full pipeline for one batch. The returned error is
// the first aborting stage failure; the RunResult always carries the
// full per-stage record either way.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting run")

	// Download.
	var archivePath string
	err := p.trackStage(log, result, StageDownload, func() error {
		pth, err := p.Download(ctx)
		archivePath = pth
		return err
	})
	if err != nil {
		return result, err
	}
	result.ArchivePath = archivePath

	// Extract.
	var raw *feed.RawTable
	err = p.trackStage(log, result, StageExtract, func() error {
		r, err := p.Extract(ctx, archivePath)
		raw = r
		return err
	})
	if err != nil {
		return result, err
	}

	// Transform.
	var table *feed.Table
	err = p.trackStage(log, result, StageTransform, func() error {
		t, err := p.Transform(raw)
		table = t
		return err
	})
	if err != nil {
		return result, err
	}
	result.Rows = len(table.Records)

	// Validate.
	err = p.trackStage(log, result, StageValidate, func() error {
		report := feed.Validate(table, p.rules)
		result.Validation = report
		if report.Empty() {
			return nil
		}
		if p.cfg.Validate.Policy == "warn" {
			log.Warn("pipeline: proceeding despite validation failures",
				zap.Int("violations", report.Count()),
			)
			return nil
		}
		return eris.Wrapf(feed.ErrContractBreached, "%d violations", report.Count())
	})
	if err != nil {
		return result, err
	}

	// Stage.
	err = p.trackStage(log, result, StageStage, func() error {
		pth, written, err := p.writer.Stage(table)
		result.StagedPath = pth
		result.Written = written
		return err
	})
	if err != nil {
		return result, err
	}

	if !result.Written && !p.cfg.Staging.ReuploadExisting {
		// Nothing new was published; re-importing the same range is
		// the scheduler's call, not ours.
		log.Info("pipeline: staged file already existed, skipping upload and trigger",
			zap.String("path", result.StagedPath),
		)
		p.skipStage(result, StageUpload)
		p.skipStage(result, StageTrigger)
		return result, nil
	}

	// Upload.
	err = p.trackStage(log, result, StageUpload, func() error {
		return p.Upload(ctx, result.StagedPath)
	})
	if err != nil {
		// No point triggering the import without the new file.
		p.skipStage(result, StageTrigger)
		return result, err
	}

	// Trigger. Failures are logged and recorded, never raised: the
	// staged file is already published and a rerun would be a no-op.
	_ = p.trackStage(log, result, StageTrigger, func() error {
		res, err := p.trigger.RunImport(ctx)
		result.Import = res
		if res != nil {
			result.ImportLog = remote.Classify(res)
		}
		return err
	})

	log.Info("pipeline: run finished",
		zap.Bool("written", result.Written),
		zap.String("staged", result.StagedPath),
		zap.Bool("failed", result.Failed()),
	)
	return result, nil
}

// Download purges stale local archives and pulls today's archive from
// the vendor server. Returns the local path.
func (p *Pipeline) Download(ctx context.Context) (string, error) {
	name := fmt.Sprintf("%s-%s.zip", p.cfg.Feed.ArchivePrefix, p.now().Format("20060102"))
	localPath := filepath.Join(p.cfg.Local.RawDir, name)
	remotePath := path.Join(p.cfg.Remote.ArchiveDir, name)

	// Stale archives from a previous failed run must never be picked
	// up as the latest one.
	if _, err := transfer.PurgeGlob(p.cfg.Local.RawDir, p.cfg.Feed.ArchivePrefix+"-*.zip"); err != nil {
		return "", err
	}
	if err := transfer.RemoveIfExists(localPath); err != nil {
		return "", err
	}

	if _, err := p.downloader.DownloadToFile(ctx, remotePath, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

// Extract locates the newest archive when no explicit path is given
// and decodes its first CSV into a raw table.
func (p *Pipeline) Extract(ctx context.Context, archivePath string) (*feed.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: extract cancelled")
	}
	if archivePath == "" {
		pth, err := archive.LatestArchive(p.cfg.Local.RawDir, p.cfg.Feed.ArchivePrefix+"-*.zip")
		if err != nil {
			return nil, err
		}
		archivePath = pth
	}
	return archive.ExtractTable(archivePath, archive.ExtractOptions{
		ScratchDir: p.cfg.Local.ExtractDir,
		Encoding:   p.cfg.Feed.CSVEncoding,
	})
}

// Transform remaps the raw table into the canonical layout. It aborts
// only when a required source column is missing from the header
// outright; everything else becomes nulls for validation to judge.
func (p *Pipeline) Transform(raw *feed.RawTable) (*feed.Table, error) {
	if missing := feed.MissingSources(raw); len(missing) > 0 {
		return nil, eris.Wrapf(feed.ErrMissingSourceColumn, "%s", strings.Join(missing, ", "))
	}
	return feed.Transform(raw, feed.TransformOptions{
		SellerID:         p.cfg.Feed.SellerID,
		FallbackCustomer: p.cfg.Feed.FallbackCustomer,
	}), nil
}

// Upload ensures the remote upload directory exists and pushes the
// staged file into it.
func (p *Pipeline) Upload(ctx context.Context, stagedPath string) error {
	if err := p.uploader.EnsureDir(ctx, p.cfg.Remote.UploadDir); err != nil {
		return err
	}
	remotePath := path.Join(p.cfg.Remote.UploadDir, filepath.Base(stagedPath))
	_, err := p.uploader.Upload(ctx, stagedPath, remotePath)
	return err
}

// FindStaged returns the newest staged CSV, for upload or trigger runs
// invoked as standalone stages.
func (p *Pipeline) FindStaged() (string, error) {
	return archive.LatestArchive(p.cfg.Local.StagingDir, p.cfg.Feed.StagingPrefix+"_*.csv")
}

// trackStage runs fn, timing and recording the outcome.
func (p *Pipeline) trackStage(log *zap.Logger, result *RunResult, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	sr := StageResult{
		Name:       name,
		Status:     StageComplete,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		sr.Status = StageFailed
		sr.Error = err.Error()
		sr.Kind = resilience.KindOf(err)
		sr.Retryable = resilience.IsRetryable(err)
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", sr.DurationMS),
			zap.String("kind", string(sr.Kind)),
			zap.Bool("retryable", sr.Retryable),
			zap.Error(err),
		)
	} else {
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", sr.DurationMS),
		)
	}
	result.Stages = append(result.Stages, sr)
	return err
}

func (p *Pipeline) skipStage(result *RunResult, name string) {
	result.Stages = append(result.Stages, StageResult{Name: name, Status: StageSkipped})
}
