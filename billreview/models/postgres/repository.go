package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"

	"github.com/clarity-dx/bill-review/billreview/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db}
}

func (r *Repository) GetProcCategories(ctx context.Context) (map[string]string, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("proc_cd", "proc_category").From("dim_proc")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make(map[string]string)
	for rows.Next() {
		var (
			procCd   string
			category sql.NullString
		)
		if err = rows.Scan(&procCd, &category); err != nil {
			return nil, err
		}
		categories[procCd] = category.String
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("order_id", "provider_id", "bundle_type", "patient_name", "patient_dob", "status")
	sb.From("orders").Where(sb.Equal("order_id", orderID))

	var (
		order       models.Order
		providerID  sql.NullString
		bundleType  sql.NullString
		patientName sql.NullString
		patientDOB  sql.NullString
		status      sql.NullString
	)
	query, args := sb.Build()
	err := r.QueryRowContext(ctx, query, args...).Scan(&order.OrderID, &providerID, &bundleType,
		&patientName, &patientDOB, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	order.ProviderID = providerID.String
	order.PatientName = patientName.String
	order.PatientDOB = patientDOB.String
	order.Status = status.String
	if bundleType.Valid {
		order.BundleType = &bundleType.String
	}

	return &order, nil
}

func (r *Repository) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "order_id", "dos", "cpt", "modifier", "units", "description")
	sb.From("line_items").Where(sb.Equal("order_id", orderID))

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var (
			line        models.OrderLine
			dos         sql.NullString
			modifier    sql.NullString
			description sql.NullString
			units       sql.NullInt64
		)
		if err = rows.Scan(&line.ID, &line.OrderID, &dos, &line.CPT, &modifier, &units, &description); err != nil {
			return nil, err
		}
		line.DOS = dos.String
		line.Modifier = modifier.String
		line.Units = int(units.Int64)
		line.Description = description.String
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *Repository) GetProviderDetails(ctx context.Context, orderID string) (*models.Provider, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("p.primary_key", "p.tin", "p.npi", "p.provider_network", "p.dba_name_billing_name",
		"p.billing_name", "p.provider_status", "p.provider_type", "p.need_ota", "p.address_1_full",
		"p.billing_address_1", "p.billing_address_2", "p.billing_address_city",
		"p.billing_address_postal_code", "p.billing_address_state")
	sb.From("orders o").Join("providers p", "o.provider_id = p.primary_key")
	sb.Where(sb.Equal("o.order_id", orderID))

	var (
		p      models.Provider
		fields [14]sql.NullString
	)
	dest := []interface{}{&p.PrimaryKey}
	for i := range fields {
		dest = append(dest, &fields[i])
	}

	query, args := sb.Build()
	if err := r.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	targets := []*string{&p.TIN, &p.NPI, &p.ProviderNetwork, &p.DBAName, &p.BillingName,
		&p.ProviderStatus, &p.ProviderType, &p.NeedOTA, &p.Address, &p.BillingAddress1,
		&p.BillingAddress2, &p.BillingCity, &p.BillingPostalCode, &p.BillingState}
	for i, t := range targets {
		*t = fields[i].String
	}

	return &p, nil
}

func (r *Repository) IsBundledOrder(ctx context.Context, orderID string) (bool, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("bundle_type").From("orders").Where(sb.Equal("order_id", orderID))

	var bundleType sql.NullString
	query, args := sb.Build()
	if err := r.QueryRowContext(ctx, query, args...).Scan(&bundleType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return bundleType.Valid, nil
}

// GetPPORate prefers the unmodified rate when a procedure also has modifier-specific rows.
func (r *Repository) GetPPORate(ctx context.Context, tin, procCd string) (*decimal.Decimal, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("rate").From("ppo").Where(
		sb.Equal("TRIM(tin)", tin),
		sb.Equal("proc_cd", procCd),
	).OrderBy("modifier")
	return r.getRate(ctx, sb)
}

func (r *Repository) GetOTARate(ctx context.Context, orderID, cpt string) (*decimal.Decimal, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("rate").From("current_otas").Where(
		sb.Equal("id_order_primary_key", orderID),
		sb.Equal("cpt", cpt),
	)
	return r.getRate(ctx, sb)
}

// getRate returns the first non-null rate selected by sb.
func (r *Repository) getRate(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*decimal.Decimal, error) {
	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rate decimal.NullDecimal
		if err = rows.Scan(&rate); err != nil {
			return nil, err
		}
		if rate.Valid {
			return &rate.Decimal, nil
		}
	}

	return nil, rows.Err()
}
