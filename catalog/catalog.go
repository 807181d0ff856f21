// Package catalog is the client-side cache of normalized property entities.
// It is the single source of truth for display and query; writes to the
// ledger only become visible here after a successful refresh.
package catalog

import (
	"context"
	"errors"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
)

// Fetcher is the ledger read path the catalog refreshes from.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]ledger.Property, error)
	FetchMine(ctx context.Context, owner string) ([]ledger.Property, error)
}

// Catalog holds the cached property set.
type Catalog struct {
	db      *gorm.DB
	gateway Fetcher
	logger  cmtlog.Logger
}

// Open opens (or creates) the catalog database at path.
func Open(path string, gateway Fetcher, logger cmtlog.Logger) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}
	return &Catalog{db: db, gateway: gateway, logger: logger}, nil
}

// All returns every cached property.
func (c *Catalog) All() ([]ledger.Property, error) {
	var records []Record
	if err := c.db.Order("property_id").Find(&records).Error; err != nil {
		return nil, err
	}
	return toProperties(records)
}

// Mine returns the cached properties owned by owner.
func (c *Catalog) Mine(owner string) ([]ledger.Property, error) {
	var records []Record
	if err := c.db.Where("owner = ?", owner).Order("property_id").Find(&records).Error; err != nil {
		return nil, err
	}
	return toProperties(records)
}

// Get looks up a single cached property by id.
func (c *Catalog) Get(id uint64) (ledger.Property, bool, error) {
	var record Record
	err := c.db.Where("property_id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Property{}, false, nil
		}
		return ledger.Property{}, false, err
	}
	p, err := record.property()
	if err != nil {
		return ledger.Property{}, false, err
	}
	return p, true, nil
}

// Refresh replaces the entire cached set with the ledger's current state.
// The replacement happens inside one database transaction: a failed fetch or
// a failed write leaves the previous snapshot untouched, and readers never
// observe a half-updated cache.
func (c *Catalog) Refresh(ctx context.Context) error {
	properties, err := c.gateway.FetchAll(ctx)
	if err != nil {
		return err
	}
	return c.replace(properties, "1 = 1")
}

// RefreshMine replaces the cached rows for a single owner with the ledger's
// owner-scoped view, with the same atomicity as Refresh.
func (c *Catalog) RefreshMine(ctx context.Context, owner string) error {
	properties, err := c.gateway.FetchMine(ctx, owner)
	if err != nil {
		return err
	}
	return c.replace(properties, "owner = ?", owner)
}

func (c *Catalog) replace(properties []ledger.Property, cond string, args ...interface{}) error {
	dbTx := c.db.Begin()
	if dbTx.Error != nil {
		return dbTx.Error
	}

	if err := dbTx.Where(cond, args...).Delete(&Record{}).Error; err != nil {
		dbTx.Rollback()
		return err
	}
	if len(properties) > 0 {
		records := make([]Record, 0, len(properties))
		for _, p := range properties {
			records = append(records, recordFrom(p))
		}
		if err := dbTx.Create(&records).Error; err != nil {
			dbTx.Rollback()
			return err
		}
	}
	if err := dbTx.Commit().Error; err != nil {
		return err
	}

	c.logger.Info("Catalog refreshed", "properties", len(properties))
	return nil
}

func toProperties(records []Record) ([]ledger.Property, error) {
	properties := make([]ledger.Property, 0, len(records))
	for _, r := range records {
		p, err := r.property()
		if err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}
	return properties, nil
}
