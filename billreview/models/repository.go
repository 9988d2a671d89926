package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository reads the reference tables claims are validated against.
type Repository interface {
	ProcedureRepository
	OrderRepository
	RateRepository
}

type ProcedureRepository interface {
	// GetProcCategories returns every dim_proc row as proc_cd -> proc_category.
	// A NULL category is returned as "".
	GetProcCategories(ctx context.Context) (map[string]string, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	GetOrderLines(ctx context.Context, orderID string) ([]OrderLine, error)

	// GetProviderDetails returns the provider the order was placed with,
	// or nil when the order or provider does not exist.
	GetProviderDetails(ctx context.Context, orderID string) (*Provider, error)

	// IsBundledOrder reports whether the order exists with a non-null bundle_type.
	IsBundledOrder(ctx context.Context, orderID string) (bool, error)
}

type RateRepository interface {
	// GetPPORate returns the contracted rate for the TIN and procedure, or nil.
	GetPPORate(ctx context.Context, tin, procCd string) (*decimal.Decimal, error)

	// GetOTARate returns the one-time-agreement rate negotiated on the order, or nil.
	GetOTARate(ctx context.Context, orderID, cpt string) (*decimal.Decimal, error)
}
