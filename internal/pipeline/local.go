package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedsync-cli/internal/feed"
)

// StageLocal runs extract, transform, validate, and stage against the
// newest downloaded archive, without touching the network. The
// workflow engine invokes it as a standalone unit after a download.
func (p *Pipeline) StageLocal(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", result.RunID))

	var raw *feed.RawTable
	err := p.trackStage(log, result, StageExtract, func() error {
		r, err := p.Extract(ctx, "")
		raw = r
		return err
	})
	if err != nil {
		return result, err
	}

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

	err = p.trackStage(log, result, StageValidate, func() error {
		report := feed.Validate(table, p.rules)
		result.Validation = report
		if report.Empty() || p.cfg.Validate.Policy == "warn" {
			return nil
		}
		return eris.Wrapf(feed.ErrContractBreached, "%d violations", report.Count())
	})
	if err != nil {
		return result, err
	}

	err = p.trackStage(log, result, StageStage, func() error {
		pth, written, err := p.writer.Stage(table)
		result.StagedPath = pth
		result.Written = written
		return err
	})
	return result, err
}

// ValidateLocal runs extract, transform, and validate as a dry check:
// it writes nothing and always returns the full report.
func (p *Pipeline) ValidateLocal(ctx context.Context) (*feed.Report, error) {
	raw, err := p.Extract(ctx, "")
	if err != nil {
		return nil, err
	}
	table, err := p.Transform(raw)
	if err != nil {
		return nil, err
	}
	return feed.Validate(table, p.rules), nil
}
