package messaging

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

const (
	// SubjectBlueprintCompiled carries every successfully compiled blueprint.
	SubjectBlueprintCompiled = "knit.blueprint.compiled"
	// SubjectEngineHeartbeat is the subject deployment engines report on.
	SubjectEngineHeartbeat = "knit.engine.heartbeat"
)

// CompiledBlueprint is the message published for a compiled blueprint.
type CompiledBlueprint struct {
	RunID      string           `json:"run_id"`
	Namespace  string           `json:"namespace"`
	Digest     string           `json:"digest"`
	Deployment *spec.Deployment `json:"deployment"`
}

// Heartbeat is the message sent by a deployment engine.
type Heartbeat struct {
	EngineID     string    `json:"engine_id"`
	Hostname     string    `json:"hostname"`
	AppliedRunID string    `json:"applied_run_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Connect establishes a connection to a NATS server.
func Connect(natsURL string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	log.WithField("url", natsURL).Info("Connected to NATS server")
	return nc, nil
}

// PublishCompiled publishes msg on SubjectBlueprintCompiled.
func PublishCompiled(nc *nats.Conn, msg CompiledBlueprint) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal compiled blueprint: %w", err)
	}
	if err := nc.Publish(SubjectBlueprintCompiled, data); err != nil {
		return fmt.Errorf("failed to publish compiled blueprint: %w", err)
	}
	log.WithFields(log.Fields{
		"run_id":    msg.RunID,
		"namespace": msg.Namespace,
	}).Info("Published compiled blueprint")
	return nil
}

// SubscribeCompiled calls handle for every compiled blueprint. Messages that
// fail to decode are logged and dropped.
func SubscribeCompiled(nc *nats.Conn, handle func(CompiledBlueprint)) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectBlueprintCompiled, func(m *nats.Msg) {
		var msg CompiledBlueprint
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.WithError(err).Error("Unmarshalling compiled blueprint")
			return
		}
		handle(msg)
	})
}

// PublishHeartbeat publishes hb on SubjectEngineHeartbeat.
func PublishHeartbeat(nc *nats.Conn, hb Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}
	return nc.Publish(SubjectEngineHeartbeat, data)
}

// SubscribeHeartbeats calls handle for every engine heartbeat.
func SubscribeHeartbeats(nc *nats.Conn, handle func(Heartbeat)) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectEngineHeartbeat, func(m *nats.Msg) {
		var hb Heartbeat
		if err := json.Unmarshal(m.Data, &hb); err != nil {
			log.WithError(err).Error("Unmarshalling heartbeat")
			return
		}
		handle(hb)
	})
}
