package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedsync-cli/internal/config"
	"github.com/sells-group/feedsync-cli/internal/feed"
	"github.com/sells-group/feedsync-cli/internal/remote"
	"github.com/sells-group/feedsync-cli/internal/resilience"
	"github.com/sells-group/feedsync-cli/internal/staging"
	"github.com/sells-group/feedsync-cli/internal/transfer"
)

var fixedNow = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

const vendorCSVHeader = "Date,Reference,Customer code,Customer name," +
	"Physical_Address1,Physical_Address2,Physical_Address3,Physical_Address4," +
	"Deliver1,Deliver2,Deliver3,Deliver4," +
	"Telephone,Product code,Product description,Value,Quantity,Rep"

// vendorCSV builds a clean vendor export with one row per date.
func vendorCSV(dates ...string) string {
	var b strings.Builder
	b.WriteString(vendorCSVHeader + "\n")
	for i, d := range dates {
		fmt.Fprintf(&b, "%s,INV%03d,SPAR01,SPAR EDENVALE,,,,,Unit 4,Main Rd,Edenvale,1609,,CB330,Cola 330ml,-50.0,10,R12\n", d, i+1)
	}
	return b.String()
}

// fakeDownloader materializes a zip holding the scripted CSV at the
// requested local path, or fails with the scripted error.
type fakeDownloader struct {
	csv     string
	err     error
	remotes []string
}

func (d *fakeDownloader) DownloadToFile(_ context.Context, remotePath, localPath string) (int64, error) {
	d.remotes = append(d.remotes, remotePath)
	if d.err != nil {
		return 0, d.err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	zw := zip.NewWriter(f)
	w, err := zw.Create("export.csv")
	if err != nil {
		return 0, err
	}
	if _, err := w.Write([]byte(d.csv)); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type fakeUploader struct {
	err     error
	ensured []string
	remotes []string
}

func (u *fakeUploader) EnsureDir(_ context.Context, dir string) error {
	u.ensured = append(u.ensured, dir)
	return nil
}

func (u *fakeUploader) Upload(_ context.Context, localPath, remotePath string) (int64, error) {
	if u.err != nil {
		return 0, u.err
	}
	u.remotes = append(u.remotes, remotePath)
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type fakeTrigger struct {
	res   *remote.CommandResult
	err   error
	calls int
}

func (f *fakeTrigger) RunImport(context.Context) (*remote.CommandResult, error) {
	f.calls++
	return f.res, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Transport: "sftp",
		Feed: config.FeedConfig{
			SellerID:         "VILJOEN",
			ArchivePrefix:    "Vilbev",
			StagingPrefix:    "Viljoenbev",
			FallbackCustomer: "SPAR NORTH RAND (11691)",
		},
		Remote: config.RemoteConfig{
			ArchiveDir: "/home/viljoenbev",
			UploadDir:  "/home/viljoenbev/clean",
		},
		Local: config.LocalConfig{
			RawDir:     filepath.Join(base, "raw"),
			ExtractDir: filepath.Join(base, "extract"),
			StagingDir: filepath.Join(base, "clean"),
		},
		Staging:  config.StagingConfig{LookbackDays: 3, DeletePolicy: "all", CreateDir: true},
		Validate: config.ValidateConfig{Policy: "block"},
	}
}

func testPipeline(cfg *config.Config, dl transfer.Downloader, up Uploader, trig ImportRunner) *Pipeline {
	writer := staging.NewWriter(staging.Options{
		Dir:          cfg.Local.StagingDir,
		Prefix:       cfg.Feed.StagingPrefix,
		LookbackDays: cfg.Staging.LookbackDays,
		DeletePolicy: cfg.Staging.DeletePolicy,
		CreateDir:    cfg.Staging.CreateDir,
		Now:          func() time.Time { return fixedNow },
	})
	p := New(cfg, dl, up, trig, writer)
	p.now = func() time.Time { return fixedNow }
	return p
}

func stageByName(t *testing.T, result *RunResult, name string) StageResult {
	t.Helper()
	for _, s := range result.Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %s not in result", name)
	return StageResult{}
}

func TestRun_HappyPath(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-22", "2026-08-23")}
	up := &fakeUploader{}
	trig := &fakeTrigger{res: &remote.CommandResult{Stdout: "Working on invoices\n"}}

	result, err := testPipeline(cfg, dl, up, trig).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.Failed())

	for _, name := range []string{
		StageDownload, StageExtract, StageTransform,
		StageValidate, StageStage, StageUpload, StageTrigger,
	} {
		assert.Equal(t, StageComplete, stageByName(t, result, name).Status, name)
	}

	// Today's archive name is derived from the clock.
	assert.Equal(t, []string{"/home/viljoenbev/Vilbev-20260824.zip"}, dl.remotes)
	assert.Equal(t, 2, result.Rows)
	assert.True(t, result.Written)
	assert.Equal(t,
		filepath.Join(cfg.Local.StagingDir, "Viljoenbev_2026-08-22_to_2026-08-23.csv"),
		result.StagedPath,
	)

	assert.Equal(t, []string{"/home/viljoenbev/clean"}, up.ensured)
	assert.Equal(t, []string{"/home/viljoenbev/clean/Viljoenbev_2026-08-22_to_2026-08-23.csv"}, up.remotes)

	assert.Equal(t, 1, trig.calls)
	require.NotNil(t, result.ImportLog)
	assert.Equal(t, []string{"Working on invoices"}, result.ImportLog.WorkingOn)
}

func TestRun_RerunSkipsUploadAndTrigger(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-23")}
	trig := &fakeTrigger{res: &remote.CommandResult{}}
	p := testPipeline(cfg, dl, &fakeUploader{}, trig)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, trig.calls)

	// Same batch again: the staged file already exists with the same
	// date range, so nothing is republished or re-imported.
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, StageSkipped, stageByName(t, result, StageUpload).Status)
	assert.Equal(t, StageSkipped, stageByName(t, result, StageTrigger).Status)
	assert.Equal(t, 1, trig.calls)
}

func TestRun_ValidationBlocks(t *testing.T) {
	cfg := testConfig(t)
	// Blank Reference makes the row breach the contract.
	bad := vendorCSVHeader + "\n" +
		"2026-08-23,,SPAR01,SPAR EDENVALE,,,,,,,,,,CB330,Cola 330ml,-50.0,10,R12\n"
	dl := &fakeDownloader{csv: bad}
	trig := &fakeTrigger{}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, trig).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrContractBreached)

	validate := stageByName(t, result, StageValidate)
	assert.Equal(t, StageFailed, validate.Status)
	assert.Equal(t, resilience.KindContract, validate.Kind)
	assert.False(t, validate.Retryable)

	require.NotNil(t, result.Validation)
	assert.Equal(t, 1, result.Validation.Count())
	assert.Empty(t, result.StagedPath)
	assert.Zero(t, trig.calls)
}

func TestRun_WarnPolicyProceeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Validate.Policy = "warn"
	bad := vendorCSVHeader + "\n" +
		"2026-08-23,,SPAR01,SPAR EDENVALE,,,,,,,,,,CB330,Cola 330ml,-50.0,10,R12\n"
	dl := &fakeDownloader{csv: bad}
	trig := &fakeTrigger{res: &remote.CommandResult{}}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, trig).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Equal(t, 1, result.Validation.Count())
	assert.Equal(t, 1, trig.calls)
}

func TestRun_DownloadFailureAborts(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{err: transfer.ErrConnection}
	trig := &fakeTrigger{}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, trig).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrConnection)

	require.Len(t, result.Stages, 1)
	download := result.Stages[0]
	assert.Equal(t, StageDownload, download.Name)
	assert.Equal(t, StageFailed, download.Status)
	assert.Equal(t, resilience.KindConnectivity, download.Kind)
	assert.True(t, download.Retryable)
	assert.Zero(t, trig.calls)
}

func TestRun_UploadFailureSkipsTrigger(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-23")}
	up := &fakeUploader{err: transfer.ErrSizeMismatch}
	trig := &fakeTrigger{}

	result, err := testPipeline(cfg, dl, up, trig).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrSizeMismatch)

	upload := stageByName(t, result, StageUpload)
	assert.Equal(t, StageFailed, upload.Status)
	assert.Equal(t, resilience.KindDataIntegrity, upload.Kind)
	assert.Equal(t, StageSkipped, stageByName(t, result, StageTrigger).Status)
	assert.Zero(t, trig.calls)
}

func TestRun_TriggerFailureIsRecordedNotRaised(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-23")}
	trig := &fakeTrigger{
		res: &remote.CommandResult{ExitCode: remote.ExitDidNotRun, Stderr: "connect refused"},
		err: transfer.ErrConnection,
	}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, trig).Run(context.Background())
	require.NoError(t, err)

	// The staged file is published; a failed trigger is the scheduler's
	// problem, reported through the stage record.
	assert.True(t, result.Written)
	assert.Equal(t, StageFailed, stageByName(t, result, StageTrigger).Status)
	assert.True(t, result.Failed())
	require.NotNil(t, result.Import)
	assert.Equal(t, remote.ExitDidNotRun, result.Import.ExitCode)
}

func TestRun_MissingSourceColumnAbortsTransform(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: "Date,Reference\n2026-08-23,INV001\n"}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, &fakeTrigger{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrMissingSourceColumn)

	transform := stageByName(t, result, StageTransform)
	assert.Equal(t, StageFailed, transform.Status)
	assert.Equal(t, resilience.KindContract, transform.Kind)
}

func TestRun_StaleDateGateFailsStageStep(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-10")}

	result, err := testPipeline(cfg, dl, &fakeUploader{}, &fakeTrigger{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, staging.ErrDateRangeOutOfWindow)

	stage := stageByName(t, result, StageStage)
	assert.Equal(t, StageFailed, stage.Status)
	assert.Equal(t, resilience.KindPolicyGate, stage.Kind)
	assert.False(t, stage.Retryable)
}

func TestDownload_PurgesStaleArchives(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Local.RawDir, 0o755))
	stale := filepath.Join(cfg.Local.RawDir, "Vilbev-20260820.zip")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	dl := &fakeDownloader{csv: vendorCSV("2026-08-23")}
	p := testPipeline(cfg, dl, &fakeUploader{}, &fakeTrigger{})

	local, err := p.Download(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, local)
	assert.Equal(t, filepath.Join(cfg.Local.RawDir, "Vilbev-20260824.zip"), local)
}

func TestStageLocal(t *testing.T) {
	cfg := testConfig(t)
	dl := &fakeDownloader{csv: vendorCSV("2026-08-23")}
	p := testPipeline(cfg, dl, &fakeUploader{}, &fakeTrigger{})

	// Seed the raw dir through a download, then run the local stages.
	_, err := p.Download(context.Background())
	require.NoError(t, err)

	result, err := p.StageLocal(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Equal(t, 1, result.Rows)
	assert.FileExists(t, result.StagedPath)

	for _, s := range result.Stages {
		assert.NotEqual(t, StageUpload, s.Name)
		assert.NotEqual(t, StageTrigger, s.Name)
	}
}

func TestValidateLocal(t *testing.T) {
	cfg := testConfig(t)
	bad := vendorCSVHeader + "\n" +
		"2026-08-23,,SPAR01,SPAR EDENVALE,,,,,,,,,,CB330,Cola 330ml,-50.0,10,R12\n"
	dl := &fakeDownloader{csv: bad}
	p := testPipeline(cfg, dl, &fakeUploader{}, &fakeTrigger{})

	_, err := p.Download(context.Background())
	require.NoError(t, err)

	report, err := p.ValidateLocal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Count())
	assert.Equal(t, "Reference", report.Violations[0].Column)
}

func TestFindStaged(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Local.StagingDir, 0o755))
	staged := filepath.Join(cfg.Local.StagingDir, "Viljoenbev_2026-08-22_to_2026-08-23.csv")
	require.NoError(t, os.WriteFile(staged, []byte("x"), 0o644))

	p := testPipeline(cfg, &fakeDownloader{}, &fakeUploader{}, &fakeTrigger{})
	found, err := p.FindStaged()
	require.NoError(t, err)
	assert.Equal(t, staged, found)
}
