package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/clarity-dx/bill-review/log"
)

const pingTimeout = 5 * time.Second

type HealthChecker struct {
	db *sql.DB
}

func NewHealthChecker(db *sql.DB) HealthChecker {
	return HealthChecker{db: db}
}

func (h HealthChecker) IsDatabaseOK() (result string, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		log.API.Error("Health check: database ping error: ", err.Error())
		return "database ping error", false
	}

	return "ok", true
}
