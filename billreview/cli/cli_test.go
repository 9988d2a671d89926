package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli"

	"github.com/clarity-dx/bill-review/billreview/analyzer"
	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/report"
	"github.com/clarity-dx/bill-review/billreview/testUtils"
)

type CLITestSuite struct {
	suite.Suite
	testApp *cli.App
	buf     *bytes.Buffer
	dir     string
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.testApp = GetApp()
	s.testApp.Writer = s.buf
	s.testApp.ErrWriter = s.buf
	s.dir = s.T().TempDir()
}

func (s *CLITestSuite) run(args ...string) error {
	return s.testApp.Run(append([]string{Name}, args...))
}

func failures(validationType string) []report.FailureRecord {
	return []report.FailureRecord{{
		FileInfo:          report.FileInfo{FileName: "a.json", OrderID: constants.TestOrderID, Timestamp: "2024-03-01T08:00:00Z"},
		ValidationSummary: report.FailureSummary{Status: constants.StatusFail, ValidationType: validationType},
		FailureDetails:    report.FailureDetails{ErrorCode: report.ErrorCode(validationType), ErrorMessage: "No rate found"},
		Context: report.FailureContext{
			HCFAData: &models.Claim{
				PatientName: "DOE, JANE",
				TotalCharge: "450.00",
				LineItems:   []models.LineItem{{CPT: "73721", Units: models.NewFlexInt(1), Charge: "450.00"}},
			},
			ReferenceData: report.ReferenceData{
				ProviderInfo: &models.Provider{TIN: constants.TestProviderTIN, DBAName: "Acme Imaging"},
			},
		},
	}}
}

func (s *CLITestSuite) TestGenerateClaims() {
	out := filepath.Join(s.dir, "claims")
	s.NoError(s.run("generate-claims", "--count", "3", "--output", out, "--order-prefix", "CLI-"))
	s.Equal("Generated 3 claims in "+out+"\n", s.buf.String())

	entries, err := os.ReadDir(out)
	s.Require().NoError(err)
	s.Len(entries, 3)

	s.EqualError(s.run("generate-claims", "--count", "0"), "count must be positive")
}

func (s *CLITestSuite) TestAnalyzeRates() {
	input := testUtils.WriteJSON(s.T(), s.dir, "validation_failures_20240301_080000.json", failures(constants.Rate))
	out := filepath.Join(s.dir, "output")

	s.NoError(s.run("analyze-rates", "--input", input, "--output", out))

	output := s.buf.String()
	s.Contains(output, "Analyzed 1 rate failures from "+input)
	s.Contains(output, "Providers: 1")
	s.Contains(output, "Total charges: 450.00")
	for _, t := range []string{analyzer.ReportCSV, analyzer.ReportJSON, analyzer.ReportParquet} {
		s.Contains(output, t+" report: "+out)
	}

	csvs, err := filepath.Glob(filepath.Join(out, "rate_failures_*.csv"))
	s.NoError(err)
	s.Len(csvs, 1)
}

func (s *CLITestSuite) TestAnalyzeRatesLatest() {
	input := testUtils.WriteJSON(s.T(), s.dir, "validation_failures_20240301_080000.json", failures(constants.Rate))
	s.NoError(s.run("analyze-rates", "--directory", s.dir, "--output", filepath.Join(s.dir, "output")))
	s.Contains(s.buf.String(), "from "+input)
}

func (s *CLITestSuite) TestAnalyzeRatesErrors() {
	s.EqualError(s.run("analyze-rates"), "either input or directory is required")

	empty := s.T().TempDir()
	s.EqualError(s.run("analyze-rates", "--directory", empty), "no validation failure files found in "+empty)

	input := testUtils.WriteJSON(s.T(), s.dir, "units.json", failures(constants.UnitCheck))
	err := s.run("analyze-rates", "--input", input, "--output", s.dir)
	s.ErrorIs(err, analyzer.ErrNoRateFailures)
}

func (s *CLITestSuite) TestUpdateRateArguments() {
	tests := []struct {
		name string
		args []string
		err  string
	}{
		{"MissingTIN", []string{"--cpt", "73721", "--rate", "450"}, "tin is required"},
		{"MissingCPT", []string{"--tin", constants.TestProviderTIN, "--rate", "450"}, "cpt is required"},
		{"MissingRate", []string{"--tin", constants.TestProviderTIN, "--cpt", "73721"}, "rate is required"},
		{"BadRate", []string{"--tin", constants.TestProviderTIN, "--cpt", "73721", "--rate", "lots"}, `invalid rate "lots"`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := GetApp().Run(append([]string{Name, "update-rate"}, tt.args...))
			s.Error(err)
			s.True(strings.HasPrefix(err.Error(), tt.err), err.Error())
		})
	}
}

func (s *CLITestSuite) TestUpdateRatesArguments() {
	s.EqualError(s.run("update-rates"), "input is required")

	input := testUtils.WriteJSON(s.T(), s.dir, "failures.json", failures(constants.Rate))
	err := GetApp().Run([]string{Name, "update-rates", "--input", input, "--default-rate", "abc"})
	s.Error(err)
	s.True(strings.HasPrefix(err.Error(), `invalid default rate "abc"`), err.Error())

	units := testUtils.WriteJSON(s.T(), s.dir, "units.json", failures(constants.UnitCheck))
	s.ErrorIs(GetApp().Run([]string{Name, "update-rates", "--input", units}), analyzer.ErrNoRateFailures)
}

func (s *CLITestSuite) TestMigrateMissingPath() {
	err := s.run("migrate", "--path", filepath.Join(s.dir, "missing"))
	s.Error(err)
	s.Contains(err.Error(), "migrations path")
}

func (s *CLITestSuite) TestValidateRequiresClaims() {
	defer testUtils.SetAndRestoreEnvKey("CLAIMS_PATH", "")()
	s.EqualError(s.run("validate"), "claims is required")
}

func (s *CLITestSuite) TestCleanup() {
	logDir := filepath.Join(s.dir, "logs")
	uploads := filepath.Join(s.dir, "uploads")
	s.Require().NoError(os.MkdirAll(logDir, os.ModePerm))
	s.Require().NoError(os.MkdirAll(uploads, os.ModePerm))

	old := time.Now().Add(-72 * time.Hour)
	session := constants.SummaryFilePrefix + old.Format(constants.SessionTimestampFormat) + ".json"
	s.Require().NoError(os.WriteFile(filepath.Join(logDir, session), []byte("{}"), 0600))
	upload := filepath.Join(uploads, "claims.json")
	s.Require().NoError(os.WriteFile(upload, []byte("[]"), 0600))
	s.Require().NoError(os.Chtimes(upload, old, old))

	s.NoError(s.run("cleanup", "--threshold-hr", "24", "--log-dir", logDir, "--upload-dir", uploads))
	s.Contains(s.buf.String(), "Archived 1 session files, removed 1 uploads")
	s.FileExists(filepath.Join(logDir, "archive", session))
	s.NoFileExists(upload)
}

func (s *CLITestSuite) TestCleanupNegativeThreshold() {
	s.EqualError(s.run("cleanup", "--threshold-hr", "-1", "--log-dir", s.dir, "--upload-dir", s.dir),
		"threshold-hr must not be negative")
}
