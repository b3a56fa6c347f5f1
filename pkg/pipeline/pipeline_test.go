package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
	"github.com/David-Botos/ipeds-ingress/pkg/loader"
	"github.com/David-Botos/ipeds-ingress/pkg/merger"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/publisher"
	"github.com/David-Botos/ipeds-ingress/pkg/writer"
)

var runTime = time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)

// fixtures are 2022-style extracts; hd is written in Latin-1
var fixtures = map[string]string{
	"hd.csv": "UNITID,INSTNM,IALIAS,WEBADDR,CITY,STABBR,ZIP,LOCALE,CONTROL,SECTOR\n" +
		"166027,Harvard University,.,www.harvard.edu/,Cambridge,MA,02138,12,2,2\n" +
		"100654,Alabama A & M University,AAMU,www.aamu.edu/,Normal,AL,35762,12,1,1\n" +
		"999001,Universit\xe9 de Test,,,Montr\xe9al,,,,,\n",
	"adm.csv": "UNITID,ADMSSN,APPLCN,SATVR25,SATMT25,SATVR75,SATMT75,ACTCM25,ACTCM75\n" +
		"166027,1954,43330,720,740,780,800,33,35\n" +
		"100654,6000,0,.,.,.,.,.,.\n",
	"ef.csv": "UNITID,EFALEVEL,EFTOTLT,EFTOTLM,EFTOTLW,EFBKAAT,EFWHITT\n" +
		"166027,1,7000,3500,3500,700,2450\n" +
		"166027,2,20000,10000,10000,2000,9000\n" +
		"100654,1,6000,2400,3600,5400,300\n",
	"sfa.csv": "UNITID,UPGRNTN\n166027,1400\n100654,.\n",
	"ic_ay.csv": "UNITID,TUITION1,TUITION2,FEE1,FEE2,CHG1AY3\n" +
		"166027,52659,52659,4195,4195,.\n",
	"gr.csv": "UNITID,GRTYPE,COHORT,GRTOTLT,CHRTSIZE\n" +
		"166027,3,2,1500,1650\n" +
		"166027,2,1,9,9\n",
	"gr200.csv": "UNITID,GRTYPE,COHORT,GRTOTLT,CHRTSIZE\n" +
		"166027,3,2,1600,1650\n",
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtures {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testConfig(dir string) *config.Config {
	source := func(name, file string) config.SourceSpec {
		return config.SourceSpec{Name: name, Location: filepath.Join(dir, file)}
	}
	return &config.Config{
		Sources: []config.SourceSpec{
			source("hd", "hd.csv"),
			source("adm", "adm.csv"),
			source("ef", "ef.csv"),
			source("sfa", "sfa.csv"),
			source("ic_ay", "ic_ay.csv"),
			source("gr", "gr.csv"),
			source("gr200", "gr200.csv"),
			source("ic_rv", "ic_rv_missing.csv"),
		},
		BaseSource:       "hd",
		Vintage:          "2022",
		OutputPath:       filepath.Join(dir, "colleges_final.json"),
		StaticSource:     "IPEDS_2022_revised",
		SentinelTokens:   []string{"."},
		FallbackEncoding: "ISO-8859-1",
		HTTPTimeout:      5 * time.Second,
	}
}

func newPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, nil)
	require.NoError(t, err)
	return p.WithClock(func() time.Time { return runTime })
}

func TestRunEndToEnd(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	dir := writeFixtures(t)
	cfg := testConfig(dir)
	var out bytes.Buffer

	p := newPipeline(t, cfg).WithReportWriter(&out)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(cfg.OutputPath)
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.NotEmpty(t, result.RunID)

	t.Run("sources", func(t *testing.T) {
		assert.Equal(t, []string{"hd", "adm", "ef", "sfa", "ic_ay", "gr", "gr200"}, result.Sources)
		assert.Equal(t, []string{"ic_rv"}, result.Unavailable)
		assert.Equal(t, 2, result.DiagnosticCount(model.CategorySourceUnavailable))
		assert.Equal(t, 2, p.Errors().GetSourceErrorCounts()["ic_rv"])
	})

	t.Run("records", func(t *testing.T) {
		records, err := writer.ReadJSON(cfg.OutputPath)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, 3, result.MergedRows)

		harvard := records[0]
		assert.Equal(t, "166027", harvard.IPEDSID)
		assert.Equal(t, 0.0451, *harvard.Admissions.AcceptanceRate)
		assert.Equal(t, int64(1460), *harvard.Admissions.SATRange.Min)
		assert.Equal(t, int64(7000), *harvard.Enrollment.Undergrad)
		assert.Equal(t, 0.35, harvard.Diversity.RaceEthnicityPct["white"])
		assert.Equal(t, 0.2, *harvard.Diversity.PellPct)
		assert.Equal(t, 0.9091, *harvard.Outcomes.GradRate4yr)
		assert.Equal(t, 0.9697, *harvard.Outcomes.GradRate6yr)
		assert.Equal(t, "2024-03-01T20:30:00Z", harvard.LastStaticUpdate)

		aamu := records[1]
		assert.Nil(t, aamu.Admissions.AcceptanceRate, "zero applicants")
		assert.Nil(t, aamu.Admissions.SATRange.Min)
		assert.Equal(t, 0.9, aamu.Diversity.RaceEthnicityPct["black"])
		assert.Nil(t, aamu.Diversity.PellPct)
		assert.Nil(t, aamu.Financials.TuitionInState)
		assert.Nil(t, aamu.Outcomes.GradRate6yr)

		latin := records[2]
		assert.Equal(t, "Université de Test", *latin.Name)
		assert.Equal(t, "Montréal", *latin.Location.City)
		assert.Empty(t, latin.Diversity.RaceEthnicityPct)
	})

	t.Run("verification", func(t *testing.T) {
		require.NotNil(t, result.Verification)
		assert.True(t, result.Verification.Passed())
		assert.Equal(t, 0, result.DiagnosticCount(model.CategoryVerification))
	})

	t.Run("metrics", func(t *testing.T) {
		stages := p.Metrics().Stages()
		require.Len(t, stages, 6)
		assert.Equal(t, model.StageLoad, stages[0].Stage)
		assert.Equal(t, 7, stages[0].Items)
		assert.True(t, stages[5].Skipped)
		assert.Equal(t, 7, p.Metrics().SourcesLoaded)
		assert.Equal(t, 1, p.Metrics().SourcesFailed)
	})

	t.Run("reports", func(t *testing.T) {
		report := out.String()
		assert.Contains(t, report, "Data completeness (3 records)")
		assert.Contains(t, report, "  acceptanceRate: 1 (33.3%)")
		assert.Contains(t, report, "Merge Run Report")
		assert.Contains(t, report, "- SourceUnavailable: 2")
		assert.Contains(t, report, "- publish: skipped")
		assert.Equal(t, 3, result.Completeness.Total)
	})
}

func TestRunMissingBase(t *testing.T) {
	dir := writeFixtures(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "hd.csv")))
	cfg := testConfig(dir)

	result, err := newPipeline(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, merger.ErrBaseTableMissing)
	assert.False(t, result.Written)
	assert.Contains(t, result.Unavailable, "hd")

	_, statErr := os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunOutputWriteFailure(t *testing.T) {
	dir := writeFixtures(t)
	cfg := testConfig(dir)
	cfg.OutputPath = filepath.Join(dir, "missing", "colleges_final.json")

	result, err := newPipeline(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, 1, result.DiagnosticCount(model.CategoryOutputWrite))
	assert.Nil(t, result.Verification)
}

func TestRunNoRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hd.csv")
	require.NoError(t, os.WriteFile(path, []byte("UNITID,INSTNM\n,Nameless\n.,Dotted\n"), 0o644))

	cfg := testConfig(dir)
	cfg.Sources = []config.SourceSpec{{Name: "hd", Location: path}}

	result, err := newPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Empty(t, result.Records)
	assert.Equal(t, 2, result.MergedRows)
	assert.Equal(t, 2, result.RowFailures())

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.CardinalityMatches)
}

func TestRunEmptyBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hd.csv")
	require.NoError(t, os.WriteFile(path, []byte("UNITID,INSTNM\n"), 0o644))

	cfg := testConfig(dir)
	cfg.Sources = []config.SourceSpec{{Name: "hd", Location: path}}

	result, err := newPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
	assert.Empty(t, result.Records)
}

type fakeWarehouse struct {
	tables map[string]*model.Table
}

func (f *fakeWarehouse) FetchTable(_ context.Context, ref string) (*model.Table, error) {
	table, ok := f.tables[ref]
	if !ok {
		return nil, errors.New("table does not exist")
	}
	return table, nil
}

func TestRunWarehouseSource(t *testing.T) {
	dir := writeFixtures(t)
	cfg := testConfig(dir)
	cfg.Sources[1] = config.SourceSpec{Name: "adm", Location: "snowflake://IPEDS.ADM2022"}

	adm := model.NewTable("ADM2022", []string{"UNITID", "ADMSSN", "APPLCN"})
	adm.Rows = []model.Row{{"UNITID": "166027", "ADMSSN": "100", "APPLCN": "400"}}

	var _ loader.TableQuerier = (*fakeWarehouse)(nil)
	p := newPipeline(t, cfg).WithWarehouse(&fakeWarehouse{tables: map[string]*model.Table{"IPEDS.ADM2022": adm}})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Sources, "adm")
	assert.Equal(t, 0.25, *result.Records[0].Admissions.AcceptanceRate)
}

func TestRunWarehouseNotConfigured(t *testing.T) {
	dir := writeFixtures(t)
	cfg := testConfig(dir)
	cfg.Sources[1] = config.SourceSpec{Name: "adm", Location: "snowflake://IPEDS.ADM2022"}

	result, err := newPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Unavailable, "adm")
	assert.Nil(t, result.Records[0].Admissions.AcceptanceRate)
}

type fakePublisher struct {
	runID   string
	records []model.College
	err     error
}

func (f *fakePublisher) ReplaceColleges(_ context.Context, runID string, records []model.College) (*publisher.SyncStatus, []model.Diagnostic, error) {
	f.runID = runID
	f.records = records
	status := &publisher.SyncStatus{
		RunID:        runID,
		TotalRecords: len(records),
		Status:       publisher.StatusFailed,
	}
	if f.err != nil {
		status.Error = f.err.Error()
		return status, nil, f.err
	}
	status.Inserted = len(records)
	status.Status = publisher.StatusCompleted
	return status, nil, nil
}

func TestRunPublish(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dir := writeFixtures(t)
		cfg := testConfig(dir).WithPublish(true)
		pub := &fakePublisher{}

		p := newPipeline(t, cfg).WithPublisher(pub)
		result, err := p.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, result.RunID, pub.runID)
		assert.Len(t, pub.records, 3)
		require.NotNil(t, result.Sync)
		assert.Equal(t, publisher.StatusCompleted, result.Sync.Status)

		stage, ok := p.Metrics().Stage(model.StagePublish)
		require.True(t, ok)
		assert.Equal(t, 3, stage.Items)
	})

	t.Run("failure is fatal", func(t *testing.T) {
		dir := writeFixtures(t)
		cfg := testConfig(dir).WithPublish(true)
		pub := &fakePublisher{err: errors.New("connection refused")}

		result, err := newPipeline(t, cfg).WithPublisher(pub).Run(context.Background())
		require.Error(t, err)
		assert.True(t, result.Written, "output is written before publishing")
		assert.Equal(t, 1, result.DiagnosticCount(model.CategoryPublish))
		assert.Equal(t, publisher.StatusFailed, result.Sync.Status)
	})

	t.Run("not requested", func(t *testing.T) {
		dir := writeFixtures(t)
		pub := &fakePublisher{}

		result, err := newPipeline(t, testConfig(dir)).WithPublisher(pub).Run(context.Background())
		require.NoError(t, err)
		assert.Nil(t, result.Sync)
		assert.Empty(t, pub.runID)
	})
}

func TestNew(t *testing.T) {
	t.Run("unknown vintage", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		cfg.Vintage = "1999"
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("schema file overrides", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "schema.yaml")
		require.NoError(t, os.WriteFile(path, []byte("aid:\n  pell_column: PGRNT_N\n"), 0o644))

		cfg := testConfig(dir)
		cfg.SchemaFile = path
		p, err := New(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "PGRNT_N", p.Registry().Aid.PellColumn)
		assert.Equal(t, "UNITID", p.Registry().KeyColumn)
	})

	t.Run("missing schema file", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		cfg.SchemaFile = filepath.Join(t.TempDir(), "nope.yaml")
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil, nil)
		assert.Error(t, err)
	})
}
