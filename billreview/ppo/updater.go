package ppo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/analyzer"
	"github.com/clarity-dx/bill-review/billreview/models"
)

const (
	sqlFlavor       = sqlbuilder.PostgreSQL
	unknownProvider = "Unknown Provider"
)

var (
	ErrInvalidTIN = errors.New("invalid TIN format")
	ErrNoFailures = errors.New("no failures data provided")
)

var ppoColumns = []string{"rendering_state", "tin", "provider_name", "proc_cd", "modifier", "proc_desc", "proc_category", "rate"}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txBeginner interface {
	execQueryer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Updater writes contracted rates to the ppo table.
type Updater struct {
	db     txBeginner
	copier analyzer.Copier
	logger logrus.FieldLogger
}

// NewUpdater returns an Updater over db. New category rows are bulk loaded
// through copier when it is not nil.
func NewUpdater(db *sql.DB, copier analyzer.Copier, logger logrus.FieldLogger) *Updater {
	return &Updater{db: db, copier: copier, logger: logger}
}

// UpdateRateByCategory sets rate on every code of each category in rates.
// Unknown categories are ignored. Existing rows are updated in a single
// transaction that is rolled back if any update or the bulk load of new rows fails.
func (u *Updater) UpdateRateByCategory(ctx context.Context, state, tin, providerName string, rates map[string]decimal.Decimal) (msg string, err error) {
	cleanTIN := CleanTIN(tin)
	if cleanTIN == "" {
		return "", ErrInvalidTIN
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to start PPO rate transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				u.logger.Warnf("Failed to rollback PPO rate transaction: %s", rbErr)
			}
		}
	}()

	var (
		added   []models.PPORate
		touched int
	)
	for _, c := range procedureCategories {
		rate, ok := rates[c.name]
		if !ok {
			continue
		}
		for _, code := range c.codes {
			touched++
			var exists bool
			if exists, err = u.exists(ctx, tx, cleanTIN, code, ""); err != nil {
				return "", err
			}
			if exists {
				if err = u.update(ctx, tx, state, cleanTIN, providerName, code, "", rate); err != nil {
					return "", err
				}
				continue
			}
			added = append(added, models.PPORate{
				RenderingState: state,
				TIN:            cleanTIN,
				ProviderName:   providerName,
				ProcCd:         code,
				ProcDesc:       procDesc(code),
				ProcCategory:   c.name,
				Rate:           rate,
			})
		}
	}

	if err = u.insertAll(ctx, tx, added); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit PPO rates")
	}

	u.logger.WithFields(logrus.Fields{"tin": cleanTIN, "updated": touched - len(added), "inserted": len(added)}).
		Info("Updated PPO rates by category")
	return fmt.Sprintf("Updated rates for %d procedures", touched), nil
}

// UpdateSingleRate updates the (tin, procCd, modifier) rate, inserting it when missing.
func (u *Updater) UpdateSingleRate(ctx context.Context, state, tin, providerName, procCd, modifier string, rate decimal.Decimal) (string, error) {
	cleanTIN := CleanTIN(tin)
	if cleanTIN == "" {
		return "", ErrInvalidTIN
	}

	exists, err := u.exists(ctx, u.db, cleanTIN, procCd, modifier)
	if err != nil {
		return "", err
	}
	if exists {
		err = u.update(ctx, u.db, state, cleanTIN, providerName, procCd, modifier, rate)
	} else {
		err = u.insert(ctx, u.db, models.PPORate{
			RenderingState: state,
			TIN:            cleanTIN,
			ProviderName:   providerName,
			ProcCd:         procCd,
			Modifier:       modifier,
			ProcDesc:       procDesc(procCd),
			ProcCategory:   CategoryOf(procCd),
			Rate:           rate,
		})
	}
	if err != nil {
		return "", err
	}

	msg := "Updated rate for procedure " + procCd
	if modifier != "" {
		msg += " " + modifier
	}
	return msg, nil
}

type UpdateDetail struct {
	Status   string           `json:"status"`
	CPT      string           `json:"cpt"`
	TIN      string           `json:"tin,omitempty"`
	Provider string           `json:"provider,omitempty"`
	Rate     *decimal.Decimal `json:"rate,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

type UpdateReport struct {
	Success bool           `json:"success"`
	Updated int            `json:"updated"`
	Failed  int            `json:"failed"`
	Details []UpdateDetail `json:"details"`
}

// UpdateRatesFromFailures prices every failed line at defaultRate. Lines that
// cannot be priced are reported as failed and do not stop the run.
func (u *Updater) UpdateRatesFromFailures(ctx context.Context, rows []analyzer.Row, defaultRate decimal.Decimal, state string) (UpdateReport, error) {
	if len(rows) == 0 {
		return UpdateReport{}, ErrNoFailures
	}

	rep := UpdateReport{Details: []UpdateDetail{}}
	fail := func(cpt, reason string) {
		rep.Failed++
		rep.Details = append(rep.Details, UpdateDetail{Status: "failed", CPT: cpt, Reason: reason})
	}

	for _, row := range rows {
		tin := row.ProviderTIN
		if tin == "" {
			tin = row.BillingTIN
		}
		switch {
		case tin == "":
			fail(row.CPT, "No TIN found")
			continue
		case CleanTIN(tin) == "":
			fail(row.CPT, "Invalid TIN format")
			continue
		case row.CPT == "":
			fail("unknown", "No CPT found")
			continue
		}

		provider := row.ProviderName
		if provider == "" {
			provider = unknownProvider
		}
		if _, err := u.UpdateSingleRate(ctx, state, tin, provider, row.CPT, row.Modifier, defaultRate); err != nil {
			fail(row.CPT, fmt.Sprintf("Error updating rate: %s", err))
			continue
		}

		rate := defaultRate
		rep.Updated++
		rep.Details = append(rep.Details, UpdateDetail{
			Status:   "updated",
			CPT:      row.CPT,
			TIN:      CleanTIN(tin),
			Provider: provider,
			Rate:     &rate,
		})
	}

	rep.Success = rep.Updated > 0
	u.logger.WithFields(logrus.Fields{"updated": rep.Updated, "failed": rep.Failed}).Info("Updated PPO rates from failures")
	return rep, nil
}

// GetProviderRates lists the rates on file for tin.
func (u *Updater) GetProviderRates(ctx context.Context, tin string) ([]models.PPORate, error) {
	cleanTIN := CleanTIN(tin)
	if cleanTIN == "" {
		return nil, ErrInvalidTIN
	}

	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(ppoColumns...).From("ppo").Where(sb.Equal("tin", cleanTIN)).OrderBy("proc_cd", "modifier")

	query, args := sb.Build()
	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []models.PPORate{}
	for rows.Next() {
		var (
			r                           models.PPORate
			state, name, desc, category sql.NullString
			rate                        decimal.NullDecimal
		)
		if err = rows.Scan(&state, &r.TIN, &name, &r.ProcCd, &r.Modifier, &desc, &category, &rate); err != nil {
			return nil, err
		}
		r.RenderingState = state.String
		r.ProviderName = name.String
		r.ProcDesc = desc.String
		r.ProcCategory = category.String
		r.Rate = rate.Decimal
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func (u *Updater) exists(ctx context.Context, q execQueryer, tin, procCd, modifier string) (bool, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("ppo").Where(
		sb.Equal("tin", tin),
		sb.Equal("proc_cd", procCd),
		sb.Equal("modifier", modifier),
	)

	var count int
	query, args := sb.Build()
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "failed to look up PPO rate for %s", procCd)
	}
	return count > 0, nil
}

func (u *Updater) update(ctx context.Context, q execQueryer, state, tin, providerName, procCd, modifier string, rate decimal.Decimal) error {
	ub := sqlFlavor.NewUpdateBuilder()
	ub.Update("ppo").Set(
		ub.Assign("rendering_state", state),
		ub.Assign("provider_name", providerName),
		ub.Assign("rate", rate),
	).Where(
		ub.Equal("tin", tin),
		ub.Equal("proc_cd", procCd),
		ub.Equal("modifier", modifier),
	)

	query, args := ub.Build()
	_, err := q.ExecContext(ctx, query, args...)
	return errors.Wrapf(err, "failed to update PPO rate for %s", procCd)
}

func (u *Updater) insert(ctx context.Context, q execQueryer, r models.PPORate) error {
	ib := sqlFlavor.NewInsertBuilder()
	ib.InsertInto("ppo").Cols(ppoColumns...).Values(rowValues(r)...)

	query, args := ib.Build()
	_, err := q.ExecContext(ctx, query, args...)
	return errors.Wrapf(err, "failed to insert PPO rate for %s", r.ProcCd)
}

// insertAll adds rates through tx, or bulk loads them through the copier when
// one is configured. The copy runs before tx commits so a failed load rolls back
// the updates made in tx.
func (u *Updater) insertAll(ctx context.Context, tx execQueryer, rates []models.PPORate) error {
	if len(rates) == 0 {
		return nil
	}
	if u.copier == nil {
		for _, r := range rates {
			if err := u.insert(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	}

	src := pgx.CopyFromSlice(len(rates), func(i int) ([]any, error) {
		values := rowValues(rates[i])
		values[len(values)-1] = rates[i].Rate.InexactFloat64()
		return values, nil
	})
	_, err := u.copier.CopyFrom(ctx, pgx.Identifier{"ppo"}, ppoColumns, src)
	return errors.Wrap(err, "failed to copy PPO rates")
}

func rowValues(r models.PPORate) []interface{} {
	return []interface{}{r.RenderingState, r.TIN, r.ProviderName, r.ProcCd, r.Modifier, r.ProcDesc, r.ProcCategory, r.Rate}
}

func procDesc(procCd string) string {
	return "Procedure " + procCd
}
