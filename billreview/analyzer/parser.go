package analyzer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dimchansky/utfbom"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/report"
)

// RateFailure is a rate validation failure with the fields needed for pricing follow-up.
type RateFailure struct {
	FileName         string            `json:"file_name"`
	OrderID          string            `json:"order_id"`
	Timestamp        string            `json:"timestamp"`
	PatientName      string            `json:"patient_name"`
	DateOfService    string            `json:"date_of_service"`
	ProviderName     string            `json:"provider_name"`
	ProviderTIN      string            `json:"provider_tin"`
	ProviderNPI      string            `json:"provider_npi"`
	ProviderNetwork  string            `json:"provider_network"`
	BillingTIN       string            `json:"billing_tin"`
	TotalCharge      models.Amount     `json:"total_charge"`
	LineItems        []models.LineItem `json:"line_items"`
	ErrorCode        string            `json:"error_code"`
	ErrorMessage     string            `json:"error_message"`
	ErrorDescription string            `json:"error_description"`
	Suggestion       string            `json:"suggestion"`
}

// Row is a rate failure flattened to a single line item.
type Row struct {
	FileName         string  `json:"file_name" parquet:"file_name"`
	OrderID          string  `json:"order_id" parquet:"order_id"`
	Timestamp        string  `json:"timestamp" parquet:"timestamp"`
	PatientName      string  `json:"patient_name" parquet:"patient_name"`
	DateOfService    string  `json:"date_of_service" parquet:"date_of_service"`
	ProviderName     string  `json:"provider_name" parquet:"provider_name"`
	ProviderTIN      string  `json:"provider_tin" parquet:"provider_tin"`
	ProviderNPI      string  `json:"provider_npi" parquet:"provider_npi"`
	ProviderNetwork  string  `json:"provider_network" parquet:"provider_network"`
	BillingTIN       string  `json:"billing_tin" parquet:"billing_tin"`
	TotalCharge      float64 `json:"total_charge" parquet:"total_charge"`
	CPT              string  `json:"cpt" parquet:"cpt"`
	Modifier         string  `json:"modifier" parquet:"modifier"`
	Units            int     `json:"units" parquet:"units"`
	Charge           float64 `json:"charge" parquet:"charge"`
	ErrorCode        string  `json:"error_code" parquet:"error_code"`
	ErrorMessage     string  `json:"error_message" parquet:"error_message"`
	ErrorDescription string  `json:"error_description" parquet:"error_description"`
	Suggestion       string  `json:"suggestion" parquet:"suggestion"`
}

// Parser reads validation_failures files and extracts rate failures.
type Parser struct {
	Path     string
	Records  []report.FailureRecord
	Failures []RateFailure

	logger logrus.FieldLogger
}

func NewParser(logger logrus.FieldLogger) *Parser {
	return &Parser{logger: logger}
}

// LoadFile reads a JSON array of failure records from path.
func (p *Parser) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	data, err := io.ReadAll(utfbom.SkipOnly(f))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	records, err := report.DecodeFailures(data)
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}

	p.Path = path
	p.Records = records
	p.logger.WithFields(logrus.Fields{"file": path, "records": len(records)}).Info("Loaded validation failures")
	return nil
}

// ExtractRateFailures keeps the FAIL records of the rate step.
func (p *Parser) ExtractRateFailures() []RateFailure {
	p.Failures = []RateFailure{}
	for _, rec := range p.Records {
		if rec.ValidationSummary.ValidationType != constants.Rate || rec.ValidationSummary.Status != constants.StatusFail {
			continue
		}
		p.Failures = append(p.Failures, toRateFailure(rec))
	}
	p.logger.Infof("Extracted %d rate validation failures", len(p.Failures))
	return p.Failures
}

func toRateFailure(rec report.FailureRecord) RateFailure {
	rf := RateFailure{
		FileName:         rec.FileInfo.FileName,
		OrderID:          rec.FileInfo.OrderID,
		Timestamp:        rec.FileInfo.Timestamp,
		ErrorCode:        rec.FailureDetails.ErrorCode,
		ErrorMessage:     rec.FailureDetails.ErrorMessage,
		ErrorDescription: rec.FailureDetails.ErrorDescription,
		Suggestion:       rec.FailureDetails.Suggestion,
		LineItems:        []models.LineItem{},
	}
	if h := rec.Context.HCFAData; h != nil {
		rf.PatientName = h.PatientName
		rf.DateOfService = h.DateOfService
		rf.BillingTIN = h.BillingProviderTIN
		rf.TotalCharge = h.TotalCharge
		if h.LineItems != nil {
			rf.LineItems = h.LineItems
		}
	}
	if pi := rec.Context.ReferenceData.ProviderInfo; pi != nil {
		rf.ProviderName = pi.DBAName
		rf.ProviderTIN = pi.TIN
		rf.ProviderNPI = pi.NPI
		rf.ProviderNetwork = pi.ProviderNetwork
	}
	return rf
}

// Rows flattens the extracted failures to one row per line item. A failure
// without line items yields a single placeholder row.
func (p *Parser) Rows() []Row {
	rows := []Row{}
	for _, rf := range p.Failures {
		base := Row{
			FileName:         rf.FileName,
			OrderID:          rf.OrderID,
			Timestamp:        rf.Timestamp,
			PatientName:      rf.PatientName,
			DateOfService:    rf.DateOfService,
			ProviderName:     rf.ProviderName,
			ProviderTIN:      rf.ProviderTIN,
			ProviderNPI:      rf.ProviderNPI,
			ProviderNetwork:  rf.ProviderNetwork,
			BillingTIN:       rf.BillingTIN,
			TotalCharge:      rf.TotalCharge.Float(),
			ErrorCode:        rf.ErrorCode,
			ErrorMessage:     rf.ErrorMessage,
			ErrorDescription: rf.ErrorDescription,
			Suggestion:       rf.Suggestion,
			Units:            1,
		}
		if len(rf.LineItems) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, li := range rf.LineItems {
			r := base
			r.CPT = li.CPT
			r.Modifier = li.ModifierString()
			r.Units = li.Units.Int(1)
			r.Charge = li.Charge.Float()
			rows = append(rows, r)
		}
	}
	return rows
}

// GetLatestFile returns the most recently modified validation_failures file
// in dir, or "" when there is none.
func GetLatestFile(dir string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+constants.FailuresFilePrefix+"*.json"))
	if err != nil {
		return "", err
	}

	var (
		latest string
		newest int64
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return "", errors.Wrapf(err, "failed to stat %s", p)
		}
		if info.IsDir() {
			continue
		}
		if mt := info.ModTime().UnixNano(); latest == "" || mt >= newest {
			latest, newest = p, mt
		}
	}
	return latest, nil
}
