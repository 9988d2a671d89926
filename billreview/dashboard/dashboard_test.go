package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/report"
	"github.com/clarity-dx/bill-review/billreview/resolution"
	"github.com/clarity-dx/bill-review/billreview/testUtils"
)

// memoryStore keeps corrections in memory.
type memoryStore struct {
	corrections []resolution.Correction
	err         error
}

func (m *memoryStore) CreateCorrection(ctx context.Context, failureID string, data json.RawMessage) (*resolution.Correction, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := resolution.Correction{
		ID:             uint(len(m.corrections) + 1),
		FailureID:      failureID,
		CorrectionData: resolution.Data(data),
		Status:         constants.CorrectionPending,
		SubmittedAt:    time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
	}
	m.corrections = append(m.corrections, c)
	return &c, nil
}

func (m *memoryStore) GetLatestCorrection(ctx context.Context, failureID string) (*resolution.Correction, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := len(m.corrections) - 1; i >= 0; i-- {
		if m.corrections[i].FailureID == failureID {
			c := m.corrections[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) ListCorrections(ctx context.Context, status string) ([]resolution.Correction, error) {
	if m.err != nil {
		return nil, m.err
	}
	var matched []resolution.Correction
	for _, c := range m.corrections {
		if status == "" || c.Status == status {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func (m *memoryStore) UpdateStatus(ctx context.Context, id uint, status string) error {
	if m.err != nil {
		return m.err
	}
	for i := range m.corrections {
		if m.corrections[i].ID == id {
			m.corrections[i].Status = status
			return nil
		}
	}
	return resolution.ErrCorrectionNotFound
}

func failure(session, file, validationType string) report.FailureRecord {
	code := report.ErrorCode(validationType)
	return report.FailureRecord{
		FileInfo: report.FileInfo{FileName: file, OrderID: constants.TestOrderID, SessionID: session},
		ValidationSummary: report.FailureSummary{
			Status:         constants.StatusFail,
			ValidationType: validationType,
			SeverityLevel:  report.Severity(validationType),
		},
		FailureDetails: report.FailureDetails{ErrorCode: code, ErrorDescription: report.Description(code)},
		Context: report.FailureContext{
			HCFAData: &models.Claim{
				PatientName:   "DOE, JANE",
				DateOfService: "03/01/2024",
				OrderID:       constants.TestOrderID,
				TotalCharge:   "450.00",
			},
		},
	}
}

type ServiceTestSuite struct {
	suite.Suite
	dir   string
	store *memoryStore
	svc   *Service
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.store = &memoryStore{}
	s.svc = NewService(s.dir, s.store)

	t := s.T()
	testUtils.WriteJSON(t, s.dir, "validation_summary_20240301_080000.json", report.Summary{
		SessionID: "session-1", Timestamp: "2024-03-01T08:00:00Z", TotalFiles: 3, PassedFiles: 1, FailedFiles: 2,
		FailureBreakdown: report.Counts{{Key: "rate", Count: 1}, {Key: "unit_check", Count: 1}},
	})
	testUtils.WriteJSON(t, s.dir, "validation_summary_20240302_080000.json", report.Summary{
		SessionID: "session-2", Timestamp: "2024-03-02T08:00:00Z", TotalFiles: 1, FailedFiles: 1,
	})
	testUtils.WriteJSON(t, s.dir, "validation_failures_20240301_080000.json", []report.FailureRecord{
		failure("session-1", "a.json", constants.Rate),
		failure("session-1", "b.json", constants.UnitCheck),
	})
	testUtils.WriteJSON(t, s.dir, "validation_failures_20240302_080000.json", []report.FailureRecord{
		failure("session-2", "c.json", constants.Rate),
	})
	testUtils.WriteJSON(t, s.dir, "validation_passes_20240301_080000.json", []report.PassRecord{})
}

func (s *ServiceTestSuite) TestGetAllSessions() {
	sessions, err := s.svc.GetAllSessions()
	s.Require().NoError(err)
	s.Equal([]SessionInfo{
		{SessionID: "session-2", Timestamp: "2024-03-02T08:00:00Z", TotalFiles: 1, FailedFiles: 1},
		{SessionID: "session-1", Timestamp: "2024-03-01T08:00:00Z", TotalFiles: 3, PassedFiles: 1, FailedFiles: 2},
	}, sessions)
}

func (s *ServiceTestSuite) TestGetAllSessionsEmptyDir() {
	sessions, err := NewService(s.T().TempDir(), s.store).GetAllSessions()
	s.NoError(err)
	s.NotNil(sessions)
	s.Empty(sessions)
}

func (s *ServiceTestSuite) TestGetSession() {
	session, err := s.svc.GetSession("session-1")
	s.Require().NoError(err)
	s.Require().NotNil(session)
	s.Equal(1, session.FailureBreakdown.Get("rate"))

	session, err = s.svc.GetSession("missing")
	s.NoError(err)
	s.Nil(session)
}

func (s *ServiceTestSuite) TestGetSessionFailures() {
	failures, err := s.svc.GetSessionFailures("session-1")
	s.Require().NoError(err)
	s.Len(failures, 2)

	failures, err = s.svc.GetSessionFailures("missing")
	s.NoError(err)
	s.Empty(failures)
}

func (s *ServiceTestSuite) TestCorruptSessionFile() {
	testUtils.WriteJSON(s.T(), s.dir, "validation_summary_20240303_080000.json", "not a summary")
	_, err := s.svc.GetAllSessions()
	s.ErrorContains(err, "failed to decode")
}

func (s *ServiceTestSuite) TestProcessCorrection() {
	receipt, err := s.svc.ProcessCorrection(context.Background(), "a.json", json.RawMessage(`{"total_charge": "400.00"}`))
	s.Require().NoError(err)
	s.Equal(CorrectionReceipt{Status: "success", CorrectionID: 1}, receipt)

	s.store.err = errors.New("database unavailable")
	_, err = s.svc.ProcessCorrection(context.Background(), "a.json", json.RawMessage(`{}`))
	s.Error(err)
}

func (s *ServiceTestSuite) TestGetErrorStatistics() {
	stats, err := s.svc.GetErrorStatistics()
	s.Require().NoError(err)
	s.Equal(report.Counts{{Key: report.RateMismatch, Count: 2}, {Key: report.UnitsInvalid, Count: 1}}, stats.ErrorCodes)
	s.Equal(report.Counts{{Key: report.SeverityError, Count: 2}, {Key: report.SeverityWarning, Count: 1}}, stats.SeverityLevels)
	s.Equal(report.Counts{{Key: constants.Rate, Count: 2}, {Key: constants.UnitCheck, Count: 1}}, stats.ValidationTypes)
	s.Equal(report.Counts{{Key: "rate", Count: 2}, {Key: "coding", Count: 1}}, stats.Categories)
	s.Equal(3, stats.TotalFailures)
}

func (s *ServiceTestSuite) TestListCorrections() {
	corrections, err := s.svc.ListCorrections(context.Background(), constants.CorrectionPending)
	s.NoError(err)
	s.NotNil(corrections)
	s.Empty(corrections)

	_, err = s.svc.ProcessCorrection(context.Background(), "a.json", json.RawMessage(`{"units":1}`))
	s.Require().NoError(err)

	corrections, err = s.svc.ListCorrections(context.Background(), "")
	s.NoError(err)
	s.Len(corrections, 1)
}

func (s *ServiceTestSuite) TestReviewCorrection() {
	receipt, err := s.svc.ProcessCorrection(context.Background(), "a.json", json.RawMessage(`{"units":1}`))
	s.Require().NoError(err)

	reviewed, err := s.svc.ReviewCorrection(context.Background(), receipt.CorrectionID, constants.CorrectionApproved)
	s.NoError(err)
	s.Equal(receipt.CorrectionID, reviewed.CorrectionID)
	s.Equal(constants.CorrectionApproved, s.store.corrections[0].Status)

	_, err = s.svc.ReviewCorrection(context.Background(), 99, constants.CorrectionRejected)
	s.ErrorIs(err, resolution.ErrCorrectionNotFound)
}

func (s *ServiceTestSuite) TestCompareVersions() {
	_, err := s.svc.ProcessCorrection(context.Background(), "a.json",
		json.RawMessage(`{"patient_name": "DOE, JANE", "total_charge": "400.00", "billing_provider_npi": "1234567890", "note": "fixed"}`))
	s.Require().NoError(err)

	cmp, err := s.svc.CompareVersions(context.Background(), "a.json")
	s.Require().NoError(err)
	s.Require().NotNil(cmp.Original)
	s.Require().NotNil(cmp.Corrected)
	s.Require().NotNil(cmp.Differences)

	d := cmp.Differences
	s.Equal([]FieldChange{
		{Field: "billing_provider_npi", Original: "", Corrected: "1234567890"},
		{Field: "total_charge", Original: "450.00", Corrected: "400.00"},
	}, d.ChangedFields)
	s.Equal([]FieldChange{{Field: "note", Corrected: "fixed"}}, d.AddedFields)

	removed := []string{}
	for _, f := range d.RemovedFields {
		removed = append(removed, f.Field)
	}
	s.Equal([]string{"Order_ID", "billing_provider_tin", "date_of_service", "line_items"}, removed)
}

func (s *ServiceTestSuite) TestCompareWithoutCorrection() {
	cmp, err := s.svc.CompareVersions(context.Background(), "b.json")
	s.Require().NoError(err)
	s.NotNil(cmp.Original)
	s.Nil(cmp.Corrected)
	s.Nil(cmp.Differences)

	cmp, err = s.svc.CompareVersions(context.Background(), "unknown.json")
	s.Require().NoError(err)
	s.Nil(cmp.Original)
}
