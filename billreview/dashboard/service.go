package dashboard

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/clarity-dx/bill-review/billreview/report"
	"github.com/clarity-dx/bill-review/billreview/resolution"
)

// CorrectionStore persists reviewer corrections.
type CorrectionStore interface {
	CreateCorrection(ctx context.Context, failureID string, data json.RawMessage) (*resolution.Correction, error)
	GetLatestCorrection(ctx context.Context, failureID string) (*resolution.Correction, error)
	ListCorrections(ctx context.Context, status string) ([]resolution.Correction, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

var _ CorrectionStore = &resolution.Store{}

// SessionInfo is the listing view of a session summary.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	Timestamp   string `json:"timestamp"`
	TotalFiles  int    `json:"total_files"`
	PassedFiles int    `json:"passed_files"`
	FailedFiles int    `json:"failed_files"`
}

type CorrectionReceipt struct {
	Status       string `json:"status"`
	CorrectionID uint   `json:"correction_id"`
}

type ErrorStatistics struct {
	ErrorCodes      report.Counts `json:"error_codes"`
	SeverityLevels  report.Counts `json:"severity_levels"`
	ValidationTypes report.Counts `json:"validation_types"`
	Categories      report.Counts `json:"categories"`
	TotalFailures   int           `json:"total_failures"`
}

type FieldChange struct {
	Field     string      `json:"field"`
	Original  interface{} `json:"original,omitempty"`
	Corrected interface{} `json:"corrected,omitempty"`
}

type Differences struct {
	ChangedFields []FieldChange `json:"changed_fields"`
	AddedFields   []FieldChange `json:"added_fields"`
	RemovedFields []FieldChange `json:"removed_fields"`
}

type Comparison struct {
	Original    *report.FailureRecord  `json:"original"`
	Corrected   *resolution.Correction `json:"corrected"`
	Differences *Differences           `json:"differences"`
}

// Service reads validation sessions from the session log directory.
type Service struct {
	LogDir      string
	Corrections CorrectionStore
	catalog     *report.ErrorManager
}

func NewService(logDir string, corrections CorrectionStore) *Service {
	return &Service{LogDir: logDir, Corrections: corrections, catalog: report.NewErrorManager()}
}

// GetAllSessions lists session summaries, newest first.
func (s *Service) GetAllSessions() ([]SessionInfo, error) {
	summaries, err := report.ReadSummaries(s.LogDir)
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(summaries))
	for _, sum := range summaries {
		sessions = append(sessions, SessionInfo{
			SessionID:   sum.SessionID,
			Timestamp:   sum.Timestamp,
			TotalFiles:  sum.TotalFiles,
			PassedFiles: sum.PassedFiles,
			FailedFiles: sum.FailedFiles,
		})
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Timestamp > sessions[j].Timestamp })
	return sessions, nil
}

// GetSession returns the summary of sessionID, or nil when there is none.
func (s *Service) GetSession(sessionID string) (*report.Summary, error) {
	summaries, err := report.ReadSummaries(s.LogDir)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if summaries[i].SessionID == sessionID {
			return &summaries[i], nil
		}
	}
	return nil, nil
}

func (s *Service) GetSessionFailures(sessionID string) ([]report.FailureRecord, error) {
	failures, err := report.ReadFailures(s.LogDir)
	if err != nil {
		return nil, err
	}

	matched := []report.FailureRecord{}
	for _, f := range failures {
		if f.FileInfo.SessionID == sessionID {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (s *Service) ProcessCorrection(ctx context.Context, failureID string, data json.RawMessage) (CorrectionReceipt, error) {
	c, err := s.Corrections.CreateCorrection(ctx, failureID, data)
	if err != nil {
		return CorrectionReceipt{}, err
	}
	return CorrectionReceipt{Status: "success", CorrectionID: c.ID}, nil
}

func (s *Service) GetErrorStatistics() (ErrorStatistics, error) {
	failures, err := report.ReadFailures(s.LogDir)
	if err != nil {
		return ErrorStatistics{}, err
	}

	codes := report.NewCounter()
	severities := report.NewCounter()
	types := report.NewCounter()
	categories := report.NewCounter()
	for _, f := range failures {
		codes.Add(f.FailureDetails.ErrorCode)
		severities.Add(f.ValidationSummary.SeverityLevel)
		types.Add(f.ValidationSummary.ValidationType)
		if d := s.catalog.GetErrorDetails(f.FailureDetails.ErrorCode); d != nil {
			categories.Add(d.Category)
		}
	}

	return ErrorStatistics{
		ErrorCodes:      codes.MostCommon(5),
		SeverityLevels:  severities.InOrder(),
		ValidationTypes: types.InOrder(),
		Categories:      categories.InOrder(),
		TotalFailures:   codes.Total(),
	}, nil
}

// ListCorrections returns the corrections in status, or all of them when status is empty.
func (s *Service) ListCorrections(ctx context.Context, status string) ([]resolution.Correction, error) {
	corrections, err := s.Corrections.ListCorrections(ctx, status)
	if err != nil {
		return nil, err
	}
	if corrections == nil {
		corrections = []resolution.Correction{}
	}
	return corrections, nil
}

func (s *Service) ReviewCorrection(ctx context.Context, id uint, status string) (CorrectionReceipt, error) {
	if err := s.Corrections.UpdateStatus(ctx, id, status); err != nil {
		return CorrectionReceipt{}, err
	}
	return CorrectionReceipt{Status: "success", CorrectionID: id}, nil
}

// CompareVersions pairs the failure logged for fileID with its latest correction.
func (s *Service) CompareVersions(ctx context.Context, fileID string) (Comparison, error) {
	failures, err := report.ReadFailures(s.LogDir)
	if err != nil {
		return Comparison{}, err
	}

	var cmp Comparison
	for i := range failures {
		if failures[i].FileInfo.FileName == fileID {
			cmp.Original = &failures[i]
			break
		}
	}

	if cmp.Corrected, err = s.Corrections.GetLatestCorrection(ctx, fileID); err != nil {
		return Comparison{}, err
	}

	if cmp.Original != nil && cmp.Corrected != nil {
		d, err := diff(cmp.Original.Context.HCFAData, cmp.Corrected.CorrectionData)
		if err != nil {
			return Comparison{}, errors.Wrapf(err, "failed to compare corrections for %s", fileID)
		}
		cmp.Differences = &d
	}
	return cmp, nil
}

// diff compares the top level fields of two JSON objects.
func diff(original, corrected interface{}) (Differences, error) {
	before, err := toObject(original)
	if err != nil {
		return Differences{}, err
	}
	after, err := toObject(corrected)
	if err != nil {
		return Differences{}, err
	}

	keys := make(map[string]struct{})
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	d := Differences{ChangedFields: []FieldChange{}, AddedFields: []FieldChange{}, RemovedFields: []FieldChange{}}
	for _, k := range names {
		o, inBefore := before[k]
		c, inAfter := after[k]
		switch {
		case inBefore && inAfter:
			if !reflect.DeepEqual(o, c) {
				d.ChangedFields = append(d.ChangedFields, FieldChange{Field: k, Original: o, Corrected: c})
			}
		case inBefore:
			d.RemovedFields = append(d.RemovedFields, FieldChange{Field: k, Original: o})
		default:
			d.AddedFields = append(d.AddedFields, FieldChange{Field: k, Corrected: c})
		}
	}
	return d, nil
}

func toObject(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj := map[string]interface{}{}
	if err = json.Unmarshal(raw, &obj); err != nil {
		// null and non-object documents compare as empty.
		return map[string]interface{}{}, nil
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}
