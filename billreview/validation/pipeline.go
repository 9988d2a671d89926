package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/claims"
	"github.com/clarity-dx/bill-review/billreview/constants"
	customErrors "github.com/clarity-dx/bill-review/billreview/errors"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/monitoring"
	"github.com/clarity-dx/bill-review/billreview/progress"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

// ResultLogger receives one result per validated claim file.
type ResultLogger interface {
	LogValidation(result models.ValidationResult)
}

// Validators share the dim_proc categories loaded once per run.
type Validators struct {
	Modifier  ModifierValidator
	Units     *UnitsValidator
	LineItems *LineItemValidator
	Rate      *RateValidator
}

func NewValidators(ctx context.Context, repo models.Repository, r *rules.Rules, logger logrus.FieldLogger) (*Validators, error) {
	procs, err := repo.GetProcCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load procedure categories")
	}
	categories := Categories(procs)

	return &Validators{
		Units:     NewUnitsValidator(categories, r),
		LineItems: NewLineItemValidator(categories, r),
		Rate:      NewRateValidator(repo, categories, logger),
	}, nil
}

type Pipeline struct {
	Repo   models.Repository
	Rules  *rules.Rules
	Sink   ResultLogger
	Logger logrus.FieldLogger

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer

	now func() time.Time
}

// Run validates every claim file in src, logging one result per file to Sink.
// It returns the number of files processed.
func (p *Pipeline) Run(ctx context.Context, src claims.Source) (int, error) {
	files, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	p.Logger.Infof("Found %d files to process", len(files))

	validators, err := NewValidators(ctx, p.Repo, p.Rules, p.Logger)
	if err != nil {
		return 0, err
	}

	bar := progress.New(p.Progress, "claims", len(files))
	defer bar.Done()

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		p.Logger.WithField("file_name", f.Name).Debugf("Processing file %d/%d", i+1, len(files))
		p.ProcessFile(ctx, src, f, validators)
		bar.Increment()
	}

	return len(files), nil
}

// ProcessFile runs one claim file through the validators. The first failing
// step is logged and ends processing. Errors are logged as process_error results.
func (p *Pipeline) ProcessFile(ctx context.Context, src claims.Source, f claims.File, v *Validators) {
	defer monitoring.NewChild(ctx, f.Name)()

	base := models.ValidationResult{
		FileName:  f.Name,
		Timestamp: p.timestamp(),
		Messages:  []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			p.Logger.WithField("file_name", f.Name).Errorf("Panic while processing file: %v\n%s", r, debug.Stack())
			p.logError(base, fmt.Errorf("%v", r))
		}
	}()

	if err := p.process(ctx, src, f, v, &base); err != nil {
		p.Logger.WithFields(logrus.Fields{"file_name": f.Name, "order_id": base.OrderID}).Errorf("Error processing file: %s", err)
		p.logError(base, err)
	}
}

func (p *Pipeline) process(ctx context.Context, src claims.Source, f claims.File, v *Validators, base *models.ValidationResult) error {
	claim, err := p.readClaim(ctx, src, f)
	if err != nil {
		return err
	}

	orderID := claim.OrderID
	provider, err := p.Repo.GetProviderDetails(ctx, orderID)
	if err != nil {
		return err
	}
	order, err := p.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &customErrors.ReferenceNotFoundError{Entity: "order", Key: orderID}
	}

	base.PatientName = claim.PatientName
	base.DateOfService = claim.DateOfService
	base.OrderID = orderID
	base.SourceData = models.SourceData{HCFA: &claim, DBProviderInfo: provider, DBPatientInfo: order}

	modifierResult := v.Modifier.Validate(claim)
	if modifierResult.Status == constants.StatusFail {
		return p.logFailure(*base, constants.ModifierCheck, modifierResult, nil)
	}

	unitsResult := v.Units.Validate(claim)
	if unitsResult.Status == constants.StatusFail {
		return p.logFailure(*base, constants.UnitCheck, unitsResult, nil)
	}

	bundled, err := p.Repo.IsBundledOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if bundled {
		return p.logFailure(*base, constants.BundleCheck, struct{}{}, nil)
	}

	orderLines, err := p.Repo.GetOrderLines(ctx, orderID)
	if err != nil {
		return err
	}
	lineResult := v.LineItems.Validate(claim.LineItems, orderLines)
	if lineResult.Status == constants.StatusFail {
		return p.logFailure(*base, constants.LineItems, lineResult, []string{"Line item validation failed"})
	}
	if lineResult.Status == constants.StatusBundled {
		p.Logger.WithField("order_id", orderID).Infof("Processing bundled claim: %s", lineResult.BundleType)
	}

	rateResult, err := v.Rate.Validate(ctx, claim.LineItems, orderID)
	if err != nil {
		return err
	}
	if rateResult.Status != constants.StatusPass {
		return p.logFailure(*base, constants.Rate, rateResult, append([]string{"Rate validation failed"}, rateResult.Messages...))
	}

	details, err := mergeDetails(lineResult, rateResult)
	if err != nil {
		return err
	}
	final := *base
	final.Status = constants.StatusPass
	final.ValidationType = constants.Final
	final.Details = details
	final.Messages = []string{"Line item and rate validation passed"}
	p.Sink.LogValidation(final)

	return nil
}

func (p *Pipeline) readClaim(ctx context.Context, src claims.Source, f claims.File) (models.Claim, error) {
	rc, err := src.Open(ctx, f)
	if err != nil {
		return models.Claim{}, errors.Wrapf(err, "failed to open %s", f.Name)
	}
	defer rc.Close()

	return claims.Decode(rc, f.Name)
}

func (p *Pipeline) logFailure(base models.ValidationResult, validationType string, details interface{}, messages []string) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s details", validationType)
	}

	base.Status = constants.StatusFail
	base.ValidationType = validationType
	base.Details = raw
	if messages != nil {
		base.Messages = messages
	}

	p.Logger.WithFields(logrus.Fields{
		"file_name":       base.FileName,
		"order_id":        base.OrderID,
		"validation_type": validationType,
	}).Info("Validation failed")
	p.Sink.LogValidation(base)
	return nil
}

func (p *Pipeline) logError(base models.ValidationResult, err error) {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})

	base.Status = constants.StatusFail
	base.ValidationType = constants.ProcessError
	base.Details = raw
	base.Messages = []string{fmt.Sprintf("Error processing file: %s", err)}
	p.Sink.LogValidation(base)
}

func (p *Pipeline) timestamp() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// mergeDetails combines the fields of each result into one object. Later results win on conflicts.
func mergeDetails(results ...interface{}) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)
	for _, r := range results {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
