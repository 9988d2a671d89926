package resolution

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-dx/bill-review/billreview/constants"
)

var ErrCorrectionNotFound = errors.New("correction not found")

// Data is a JSON document stored in a jsonb column.
type Data json.RawMessage

func (d Data) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return string(d), nil
}

func (d *Data) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append((*d)[:0], v...)
	case string:
		*d = Data(v)
	default:
		return fmt.Errorf("cannot scan %T into Data", src)
	}
	return nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *Data) UnmarshalJSON(b []byte) error {
	*d = append((*d)[:0], b...)
	return nil
}

// Correction is a reviewer submitted fix for a validation failure.
type Correction struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	FailureID      string     `gorm:"index;not null" json:"failure_id"`
	CorrectionData Data       `gorm:"type:jsonb" json:"correction_data"`
	Status         string     `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	SubmittedAt    time.Time  `gorm:"not null" json:"timestamp"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the corrections database at dsn.
func Open(dsn string, log logrus.FieldLogger) (*Store, error) {
	return New(postgres.Open(dsn), log)
}

func New(dialector gorm.Dialector, log logrus.FieldLogger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open corrections store")
	}
	return &Store{db: db, now: time.Now}, nil
}

// AutoMigrate creates or updates the corrections table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Correction{})
}

func (s *Store) CreateCorrection(ctx context.Context, failureID string, data json.RawMessage) (*Correction, error) {
	c := &Correction{
		FailureID:      failureID,
		CorrectionData: Data(data),
		Status:         constants.CorrectionPending,
		SubmittedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to store correction for %s", failureID)
	}
	return c, nil
}

// GetLatestCorrection returns the most recent correction for failureID, or nil when there is none.
func (s *Store) GetLatestCorrection(ctx context.Context, failureID string) (*Correction, error) {
	var c Correction
	err := s.db.WithContext(ctx).
		Where("failure_id = ?", failureID).
		Order("submitted_at DESC").Order("id DESC").
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCorrections returns corrections with the given status, oldest first. An empty status lists all.
func (s *Store) ListCorrections(ctx context.Context, status string) ([]Correction, error) {
	q := s.db.WithContext(ctx).Order("submitted_at").Order("id")
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var corrections []Correction
	if err := q.Find(&corrections).Error; err != nil {
		return nil, err
	}
	return corrections, nil
}

// UpdateStatus moves a correction through review. Approved and rejected corrections are stamped as resolved.
func (s *Store) UpdateStatus(ctx context.Context, id uint, status string) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case constants.CorrectionPending:
		updates["resolved_at"] = nil
	case constants.CorrectionApproved, constants.CorrectionRejected:
		updates["resolved_at"] = s.now().UTC()
	default:
		return fmt.Errorf("invalid correction status %q", status)
	}

	res := s.db.WithContext(ctx).Model(&Correction{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCorrectionNotFound
	}
	return nil
}
