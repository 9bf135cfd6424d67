package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/knitplan/internal/messaging"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

func main() {
	cmd := &cli.Command{
		Name:  "knit-agent",
		Usage: "Receives compiled blueprints for a deployment engine and reports back.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nats-url", Value: "nats://127.0.0.1:4222", Usage: "NATS server URL", Sources: cli.EnvVars("KNIT_NATS_URL")},
			&cli.StringFlag{Name: "engine-id", Usage: "Engine identifier (random when empty)", Sources: cli.EnvVars("KNIT_ENGINE_ID")},
			&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "Directory the engine reads IR files from"},
			&cli.DurationFlag{Name: "heartbeat-interval", Value: 15 * time.Second, Usage: "Interval between heartbeats"},
		},
		Action: runAgent,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type agent struct {
	engineID string
	hostname string
	outDir   string

	mu      sync.Mutex
	applied string
}

func runAgent(ctx context.Context, cmd *cli.Command) error {
	log.Info("Starting Knit Agent...")

	engineID := cmd.String("engine-id")
	if engineID == "" {
		engineID = uuid.NewString()
	}
	hostname, _ := os.Hostname()
	a := &agent{engineID: engineID, hostname: hostname, outDir: cmd.String("out-dir")}

	nc, err := messaging.Connect(cmd.String("nats-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	if _, err := messaging.SubscribeCompiled(nc, a.handleCompiled); err != nil {
		return fmt.Errorf("failed to subscribe to compiled blueprints: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cmd.Duration("heartbeat-interval"))
	defer ticker.Stop()
	for {
		if err := messaging.PublishHeartbeat(nc, a.heartbeat()); err != nil {
			log.WithError(err).Error("Sending heartbeat")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info("Stopping Knit Agent.")
			return nil
		}
	}
}

func (a *agent) heartbeat() messaging.Heartbeat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return messaging.Heartbeat{
		EngineID:     a.engineID,
		Hostname:     a.hostname,
		AppliedRunID: a.applied,
		Timestamp:    time.Now(),
	}
}

// handleCompiled writes the IR where the engine picks it up, one file per
// namespace.
func (a *agent) handleCompiled(msg messaging.CompiledBlueprint) {
	ir, err := spec.Encode(msg.Deployment)
	if err != nil {
		log.WithError(err).Error("Encoding compiled blueprint")
		return
	}
	path, err := a.irPath(msg.Namespace)
	if err != nil {
		log.WithError(err).WithField("run_id", msg.RunID).Error("Refusing compiled blueprint")
		return
	}
	if err := os.WriteFile(path, ir, 0o644); err != nil {
		log.WithError(err).WithField("path", path).Error("Writing IR")
		return
	}

	a.mu.Lock()
	a.applied = msg.RunID
	a.mu.Unlock()
	log.WithFields(log.Fields{"run_id": msg.RunID, "path": path}).Info("Handed blueprint to engine")
}

// irPath returns the IR file of namespace inside outDir. Namespaces that
// would leave outDir are rejected.
func (a *agent) irPath(namespace string) (string, error) {
	if namespace == "" {
		return "", fmt.Errorf("compiled blueprint has no namespace")
	}
	path := filepath.Join(a.outDir, namespace+".json")
	rel, err := filepath.Rel(a.outDir, path)
	if err != nil {
		return "", fmt.Errorf("namespace %q: %w", namespace, err)
	}
	if rel != filepath.Base(rel) || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("namespace %q escapes the output directory", namespace)
	}
	return path, nil
}
