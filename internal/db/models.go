package db

import (
	"time"

	"gorm.io/gorm"
)

// Engine status values.
const (
	EngineHealthy = "healthy"
	EngineStale   = "stale"
)

// Compilation is one blueprint compilation. Failed compilations keep the
// stage and message of the error and have an empty IR.
type Compilation struct {
	gorm.Model
	RunID     string `gorm:"uniqueIndex"`
	Namespace string `gorm:"index"`
	Digest    string
	IR        string
	Stage     string
	Error     string
}

// Succeeded reports whether the compilation produced an IR.
func (c *Compilation) Succeeded() bool {
	return c.Error == ""
}

// Engine is a deployment engine that consumes compiled blueprints.
type Engine struct {
	gorm.Model
	EngineID      string `gorm:"uniqueIndex"`
	Hostname      string
	Status        string
	AppliedRunID  string
	LastHeartbeat time.Time
}
