package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tyemirov/tripauth/internal/database"
)

// DatabasePersistence stores the credential pair in a SQL table through GORM.
// Each client profile owns one row, addressed by its slot.
type DatabasePersistence struct {
	db          *gorm.DB
	driverLabel string
	slot        string
	now         func() time.Time
}

type credentialRecord struct {
	Slot         string `gorm:"column:slot;primaryKey"`
	AccessToken  string `gorm:"column:access_token;not null;default:''"`
	RefreshToken string `gorm:"column:refresh_token;not null;default:''"`
	UpdatedUnix  int64  `gorm:"column:updated_unix;not null"`
}

func (credentialRecord) TableName() string {
	return "client_credentials"
}

// NewDatabasePersistence opens databaseURL (postgres:// or sqlite://) and
// migrates the credential table.
func NewDatabasePersistence(ctx context.Context, databaseURL string, slot string) (*DatabasePersistence, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("credentials.database.open: %w", errEmptyDatabaseURL)
	}
	if strings.TrimSpace(slot) == "" {
		return nil, fmt.Errorf("credentials.database.open: %w", errEmptySlot)
	}
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &credentialRecord{})
	if err != nil {
		return nil, fmt.Errorf("credentials.database.open: %w", err)
	}
	return &DatabasePersistence{
		db:          gormDB,
		driverLabel: driverLabel,
		slot:        slot,
		now:         time.Now,
	}, nil
}

// Driver exposes the selected database driver label.
func (persistence *DatabasePersistence) Driver() string {
	return persistence.driverLabel
}

// Save upserts the pair for the configured slot.
func (persistence *DatabasePersistence) Save(ctx context.Context, pair TokenPair) error {
	record := credentialRecord{
		Slot:         persistence.slot,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedUnix:  persistence.now().UTC().Unix(),
	}
	err := persistence.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("credentials.database.save.%s: %w", persistence.driverLabel, err)
	}
	return nil
}

// Load returns the pair stored for the configured slot.
func (persistence *DatabasePersistence) Load(ctx context.Context) (TokenPair, bool, error) {
	var record credentialRecord
	err := persistence.db.WithContext(ctx).Where("slot = ?", persistence.slot).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, false, nil
		}
		return TokenPair{}, false, fmt.Errorf("credentials.database.load.%s: %w", persistence.driverLabel, err)
	}
	return TokenPair{AccessToken: record.AccessToken, RefreshToken: record.RefreshToken}, true, nil
}

// Clear deletes the row for the configured slot.
func (persistence *DatabasePersistence) Clear(ctx context.Context) error {
	err := persistence.db.WithContext(ctx).Where("slot = ?", persistence.slot).Delete(&credentialRecord{}).Error
	if err != nil {
		return fmt.Errorf("credentials.database.clear.%s: %w", persistence.driverLabel, err)
	}
	return nil
}
