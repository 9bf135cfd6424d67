// Package liveness tracks which deployment engines are still reporting.
package liveness

import (
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/knitplan/internal/db"
	"github.com/atvirokodosprendimai/knitplan/internal/messaging"
)

// Service marks engines stale when they miss heartbeats for longer than
// timeout.
type Service struct {
	db       *gorm.DB
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates a new liveness service.
func NewService(gormDB *gorm.DB, interval, timeout time.Duration) *Service {
	return &Service{
		db:       gormDB,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep for stale engines.
func (s *Service) Start() {
	log.Info("Starting engine liveness service...")
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				log.Info("Stopping engine liveness service.")
				return
			}
		}
	}()
}

// Stop halts the service and waits for the running sweep to finish.
func (s *Service) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// Heartbeat records a heartbeat received from an engine.
func (s *Service) Heartbeat(hb messaging.Heartbeat) {
	ts := hb.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	err := db.RecordHeartbeat(s.db, &db.Engine{
		EngineID:      hb.EngineID,
		Hostname:      hb.Hostname,
		AppliedRunID:  hb.AppliedRunID,
		LastHeartbeat: ts,
	})
	if err != nil {
		log.WithError(err).Error("Recording heartbeat")
		return
	}
	log.WithFields(log.Fields{
		"engine":   hb.EngineID,
		"hostname": hb.Hostname,
		"run_id":   hb.AppliedRunID,
	}).Debug("Heartbeat received")
}

func (s *Service) sweep() {
	n, err := db.MarkStaleEngines(s.db, s.now().Add(-s.timeout))
	if err != nil {
		log.WithError(err).Error("Sweeping stale engines")
		return
	}
	if n > 0 {
		log.WithField("count", n).Warn("Marked engines stale")
	}
}
