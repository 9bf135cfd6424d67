package db

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// NewDatabase initializes a new GORM database connection and runs auto-migrations.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	log.Info("Running database migrations...")
	if err := db.AutoMigrate(&Compilation{}, &Engine{}); err != nil {
		return nil, err
	}

	log.Info("Database connection established and migrations completed.")
	return db, nil
}

// Digest returns the hex SHA-256 of an encoded IR.
func Digest(ir []byte) string {
	sum := sha256.Sum256(ir)
	return hex.EncodeToString(sum[:])
}

// NewCompilation encodes d into a Compilation with a fresh RunID.
func NewCompilation(d *spec.Deployment) (*Compilation, error) {
	ir, err := spec.Encode(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deployment: %w", err)
	}
	c := &Compilation{
		RunID:  uuid.NewString(),
		Digest: Digest(ir),
		IR:     string(ir),
	}
	if d != nil {
		c.Namespace = d.Namespace
	}
	return c, nil
}

// Deployment decodes the stored IR. It returns nil for failed compilations.
func (c *Compilation) Deployment() (*spec.Deployment, error) {
	if !c.Succeeded() || c.IR == "" {
		return nil, nil
	}
	return spec.Decode([]byte(c.IR))
}

// SaveCompilation stores c. A compilation with a RunID that is already
// stored is left unchanged.
func SaveCompilation(db *gorm.DB, c *Compilation) error {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoNothing: true,
	}).Create(c)
	if result.Error != nil {
		return fmt.Errorf("failed to save compilation %s: %w", c.RunID, result.Error)
	}
	return nil
}

// LatestCompilation returns the most recent successful compilation, limited
// to namespace unless it is empty. It returns nil when there is none.
func LatestCompilation(db *gorm.DB, namespace string) (*Compilation, error) {
	q := db.Where("error = ?", "")
	if namespace != "" {
		q = q.Where("namespace = ?", namespace)
	}

	var c Compilation
	if err := q.Order("id DESC").First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query compilations: %w", err)
	}
	return &c, nil
}

// ListCompilations returns up to limit compilations, newest first.
func ListCompilations(db *gorm.DB, limit int) ([]Compilation, error) {
	var out []Compilation
	if err := db.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list compilations: %w", err)
	}
	return out, nil
}

// RecordHeartbeat upserts the engine identified by e.EngineID and marks it
// healthy.
func RecordHeartbeat(db *gorm.DB, e *Engine) error {
	e.Status = EngineHealthy
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "engine_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hostname", "last_heartbeat", "status", "applied_run_id"}),
	}).Create(e)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert engine %s: %w", e.EngineID, result.Error)
	}
	return nil
}

// MarkStaleEngines marks healthy engines whose last heartbeat is before
// cutoff as stale and returns how many changed.
func MarkStaleEngines(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Model(&Engine{}).
		Where("status = ? AND last_heartbeat < ?", EngineHealthy, cutoff).
		Update("status", EngineStale)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark stale engines: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListEngines returns all known engines ordered by EngineID.
func ListEngines(db *gorm.DB) ([]Engine, error) {
	var out []Engine
	if err := db.Order("engine_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list engines: %w", err)
	}
	return out, nil
}
