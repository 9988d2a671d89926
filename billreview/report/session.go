package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
)

var notAvailable = json.RawMessage(`"N/A"`)

// Paths are the files written by Session.Save.
type Paths struct {
	Passes   string `json:"passes_file"`
	Failures string `json:"failures_file"`
	Summary  string `json:"summary_file"`
}

// Session collects the validation results of one run and writes them to the
// passes, failures and summary files.
type Session struct {
	ID        string
	Timestamp string
	Dir       string

	logger logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	results []models.ValidationResult
}

func NewSession(dir string, logger logrus.FieldLogger) (*Session, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory %s", dir)
	}

	return &Session{
		ID:        uuid.New(),
		Timestamp: time.Now().Format(constants.SessionTimestampFormat),
		Dir:       dir,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *Session) LogValidation(result models.ValidationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

// Save writes the session files. A result counts as a pass only when every
// result logged for the same file passed.
func (s *Session) Save() (Paths, error) {
	s.mu.Lock()
	results := append([]models.ValidationResult(nil), s.results...)
	s.mu.Unlock()

	failedFiles := make(map[string]bool)
	for _, r := range results {
		if r.Status != constants.StatusPass {
			failedFiles[r.FileName] = true
		}
	}

	passes := []PassRecord{}
	failures := []FailureRecord{}
	failureTypes := NewCounter()
	for _, r := range results {
		if r.Status == constants.StatusPass && !failedFiles[r.FileName] {
			passes = append(passes, s.passRecord(r))
			continue
		}
		failures = append(failures, s.failureRecord(r))
		failureTypes.Add(r.ValidationType)
	}

	paths := Paths{
		Passes:   filepath.Join(s.Dir, constants.PassesFilePrefix+s.Timestamp+".json"),
		Failures: filepath.Join(s.Dir, constants.FailuresFilePrefix+s.Timestamp+".json"),
		Summary:  filepath.Join(s.Dir, constants.SummaryFilePrefix+s.Timestamp+".json"),
	}

	summary := Summary{
		SessionID:        s.ID,
		Timestamp:        s.now().Format(time.RFC3339),
		TotalFiles:       len(passes) + len(failures),
		PassedFiles:      len(passes),
		FailedFiles:      len(failures),
		FailureBreakdown: failureTypes.MostCommon(0),
		CommonErrors:     commonErrors(failures),
	}

	if err := writeJSON(paths.Passes, passes); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(paths.Failures, failures); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(paths.Summary, summary); err != nil {
		return Paths{}, err
	}

	logger := s.logger.WithField("session_id", s.ID)
	logger.WithFields(logrus.Fields{
		"passed_files": summary.PassedFiles,
		"failed_files": summary.FailedFiles,
	}).Info("Validation session summary")
	for _, c := range summary.FailureBreakdown {
		logger.Infof("%s: %d occurrences", c.Key, c.Count)
	}

	return paths, nil
}

// resultDetails is the subset of a result's details read into session records.
type resultDetails struct {
	Results []struct {
		Status string `json:"status"`
	} `json:"results"`
	Expected          json.RawMessage `json:"expected"`
	Actual            json.RawMessage `json:"actual"`
	ComparisonDetails json.RawMessage `json:"comparison_details"`
}

func parseDetails(raw json.RawMessage) resultDetails {
	var d resultDetails
	if len(raw) > 0 {
		// Details that are not an object carry none of the fields above.
		_ = json.Unmarshal(raw, &d)
	}
	if len(d.ComparisonDetails) == 0 {
		d.ComparisonDetails = json.RawMessage(`{}`)
	}
	return d
}

func (s *Session) fileInfo(r models.ValidationResult) FileInfo {
	return FileInfo{
		FileName:  r.FileName,
		OrderID:   r.OrderID,
		Timestamp: s.now().Format(time.RFC3339),
		SessionID: s.ID,
	}
}

func (s *Session) failureRecord(r models.ValidationResult) FailureRecord {
	details := parseDetails(r.Details)

	failed := 0
	for _, res := range details.Results {
		if res.Status == constants.StatusFail {
			failed++
		}
	}

	message := "Validation failed"
	if len(r.Messages) > 0 {
		message = r.Messages[0]
	}

	code := ErrorCode(r.ValidationType)
	return FailureRecord{
		FileInfo: s.fileInfo(r),
		ValidationSummary: FailureSummary{
			Status:         r.Status,
			ValidationType: r.ValidationType,
			SeverityLevel:  Severity(r.ValidationType),
			TotalChecks:    len(details.Results),
			FailedChecks:   failed,
		},
		FailureDetails: FailureDetails{
			ValidationStep:   r.ValidationType,
			ErrorCode:        code,
			ErrorMessage:     message,
			ErrorDescription: Description(code),
			ExpectedValue:    orNotAvailable(details.Expected),
			ActualValue:      orNotAvailable(details.Actual),
			Suggestion:       Suggestion(r.ValidationType),
		},
		Context: FailureContext{
			HCFAData: r.SourceData.HCFA,
			ReferenceData: ReferenceData{
				ProviderInfo: r.SourceData.DBProviderInfo,
				PatientInfo:  r.SourceData.DBPatientInfo,
			},
			ComparisonDetails: details.ComparisonDetails,
		},
	}
}

func (s *Session) passRecord(r models.ValidationResult) PassRecord {
	var lines struct {
		Results []PassLineItem `json:"results"`
	}
	_ = json.Unmarshal(r.Details, &lines)

	items := make([]PassLineItem, 0, len(lines.Results))
	for _, l := range lines.Results {
		l.DateOfService = r.DateOfService
		items = append(items, l)
	}

	return PassRecord{
		FileInfo: s.fileInfo(r),
		ValidationSummary: PassSummary{
			Status:      constants.StatusPass,
			TotalChecks: len(items),
		},
		Data: PassData{
			PatientInfo:       r.SourceData.DBPatientInfo,
			ProviderInfo:      r.SourceData.DBProviderInfo,
			DateOfService:     r.DateOfService,
			LineItems:         items,
			ComparisonDetails: parseDetails(r.Details).ComparisonDetails,
		},
	}
}

func commonErrors(failures []FailureRecord) []CommonError {
	codes := NewCounter()
	for _, f := range failures {
		codes.Add(f.FailureDetails.ErrorCode)
	}

	common := []CommonError{}
	for _, c := range codes.MostCommon(5) {
		common = append(common, CommonError{ErrorCode: c.Key, Count: c.Count, Description: Description(c.Key)})
	}
	return common
}

func orNotAvailable(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return notAvailable
	}
	return v
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	if err = os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
