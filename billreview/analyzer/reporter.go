package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/jackc/pgx/v5"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Report types returned by GenerateAllReports.
const (
	ReportJSON    = "json"
	ReportCSV     = "csv"
	ReportParquet = "parquet"
	ReportMatrix  = "matrix"
)

var ErrNoReportData = errors.New("no data available for reports")

// Reporter writes analysis results to OutputDir.
type Reporter struct {
	OutputDir string

	rows    []Row
	agg     *Aggregator
	summary Summary
	logger  logrus.FieldLogger
}

func NewReporter(outputDir string, rows []Row, agg *Aggregator, summary Summary, logger logrus.FieldLogger) *Reporter {
	return &Reporter{OutputDir: outputDir, rows: rows, agg: agg, summary: summary, logger: logger}
}

// GenerateAllReports writes every report stamped with ts and returns their
// paths keyed by report type.
func (r *Reporter) GenerateAllReports(ts string) (map[string]string, error) {
	if len(r.rows) == 0 {
		return nil, ErrNoReportData
	}
	if err := os.MkdirAll(r.OutputDir, 0750); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", r.OutputDir)
	}

	paths := map[string]string{
		ReportJSON:    filepath.Join(r.OutputDir, fmt.Sprintf("rate_validation_summary_%s.json", ts)),
		ReportCSV:     filepath.Join(r.OutputDir, fmt.Sprintf("rate_failures_%s.csv", ts)),
		ReportParquet: filepath.Join(r.OutputDir, fmt.Sprintf("rate_failures_%s.parquet", ts)),
		ReportMatrix:  filepath.Join(r.OutputDir, fmt.Sprintf("provider_cpt_matrix_%s.csv", ts)),
	}

	if err := r.writeSummary(paths[ReportJSON]); err != nil {
		return nil, err
	}
	if err := writeCSV(paths[ReportCSV], r.agg.DataFrame()); err != nil {
		return nil, err
	}
	if err := r.writeParquet(paths[ReportParquet]); err != nil {
		return nil, err
	}
	matrix, ok := r.agg.ProviderCPTMatrix()
	if ok {
		if err := writeCSV(paths[ReportMatrix], matrix); err != nil {
			return nil, err
		}
	} else {
		delete(paths, ReportMatrix)
	}

	r.logger.WithFields(logrus.Fields{"output_dir": r.OutputDir, "reports": len(paths)}).Info("Generated rate failure reports")
	return paths, nil
}

func (r *Reporter) writeSummary(path string) error {
	data, err := json.MarshalIndent(r.summary, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal summary")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0600), "failed to write %s", path)
}

func (r *Reporter) writeParquet(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Snappy))
	if _, err = w.Write(r.rows); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err = w.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to close parquet writer for %s", path)
	}
	return f.Close()
}

func writeCSV(path string, df dataframe.DataFrame) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err = df.WriteCSV(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}

// Copier bulk loads rows. *pgxpool.Pool and pgx.Tx satisfy it.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var rateFailureColumns = []string{
	"file_name", "order_id", "patient_name", "date_of_service", "provider_name",
	"provider_tin", "provider_npi", "provider_network", "billing_tin", "cpt",
	"modifier", "units", "charge", "total_charge", "error_code", "error_message",
}

// ExportRateFailures appends rows to the rate_failures table.
func ExportRateFailures(ctx context.Context, db Copier, rows []Row) (int64, error) {
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{
			r.FileName, r.OrderID, r.PatientName, r.DateOfService, r.ProviderName,
			r.ProviderTIN, r.ProviderNPI, r.ProviderNetwork, r.BillingTIN, r.CPT,
			r.Modifier, r.Units, r.Charge, r.TotalCharge, r.ErrorCode, r.ErrorMessage,
		}, nil
	})

	n, err := db.CopyFrom(ctx, pgx.Identifier{"rate_failures"}, rateFailureColumns, src)
	if err != nil {
		return 0, errors.Wrap(err, "failed to copy rate failures")
	}
	return n, nil
}
