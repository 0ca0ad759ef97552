package pipeline

import (
	"github.com/sells-group/feedsync-cli/internal/feed"
	"github.com/sells-group/feedsync-cli/internal/remote"
	"github.com/sells-group/feedsync-cli/internal/resilience"
)

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// Stage names, in fixed run order.
const (
	StageDownload  = "download"
	StageExtract   = "extract"
	StageTransform = "transform"
	StageValidate  = "validate"
	StageStage     = "stage"
	StageUpload    = "upload"
	StageTrigger   = "trigger"
)

// StageResult records one stage's outcome for the run summary.
type StageResult struct {
	Name       string          `json:"name"`
	Status     StageStatus     `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	Kind       resilience.Kind `json:"kind,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
}

// RunResult is the aggregate outcome of one pipeline run. The external
// scheduler reads it to decide on retries and alerting.
type RunResult struct {
	RunID       string                `json:"run_id"`
	Stages      []StageResult         `json:"stages"`
	ArchivePath string                `json:"archive_path,omitempty"`
	Rows        int                   `json:"rows,omitempty"`
	Validation  *feed.Report          `json:"validation,omitempty"`
	StagedPath  string                `json:"staged_path,omitempty"`
	Written     bool                  `json:"written"`
	Import      *remote.CommandResult `json:"import,omitempty"`
	ImportLog   *remote.Report        `json:"import_log,omitempty"`
}

// Failed reports whether any stage failed.
func (r *RunResult) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}
