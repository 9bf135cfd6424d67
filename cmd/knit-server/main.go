package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/go-github/v74/github"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/knitplan/internal/db"
	"github.com/atvirokodosprendimai/knitplan/internal/messaging"
	"github.com/atvirokodosprendimai/knitplan/internal/server/api"
	"github.com/atvirokodosprendimai/knitplan/internal/server/liveness"
	"github.com/atvirokodosprendimai/knitplan/internal/sshkeys"
)

func main() {
	cmd := &cli.Command{
		Name:  "knit-server",
		Usage: "Compiles blueprints and serves the deployment IR to Knit engines.",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the Knit server and embedded NATS",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "http-addr", Value: "0.0.0.0:8080", Usage: "HTTP server bind address", Sources: cli.EnvVars("KNIT_HTTP_ADDR")},
					&cli.StringFlag{Name: "db-path", Value: "knit.db", Usage: "Path to the SQLite database file", Sources: cli.EnvVars("KNIT_DB_PATH")},
					&cli.StringFlag{Name: "nats-addr", Value: "0.0.0.0:4222", Usage: "NATS server bind address (host:port)", Sources: cli.EnvVars("KNIT_NATS_ADDR")},
					&cli.StringFlag{Name: "github-token", Usage: "GitHub token for githubKeys lookups", Sources: cli.EnvVars("GITHUB_TOKEN")},
					&cli.DurationFlag{Name: "engine-timeout", Value: 90 * time.Second, Usage: "Mark engines stale after this long without a heartbeat"},
					&cli.DurationFlag{Name: "liveness-interval", Value: 30 * time.Second, Usage: "Interval between stale engine sweeps"},
					&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (debug, info, warn, error)"},
				},
				Action: runServer,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	level, err := log.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.Info("Starting Knit Server...")

	// 1. Initialize Database
	gormDB, err := db.NewDatabase(cmd.String("db-path"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. Start engine liveness tracking
	livenessSvc := liveness.NewService(gormDB, cmd.Duration("liveness-interval"), cmd.Duration("engine-timeout"))
	livenessSvc.Start()
	defer livenessSvc.Stop()

	// 3. Start Embedded NATS Server
	natsAddr := cmd.String("nats-addr")
	natsHost, natsPort, err := net.SplitHostPort(natsAddr)
	if err != nil {
		return fmt.Errorf("invalid nats-addr format: %w", err)
	}
	natsPortInt, err := strconv.Atoi(natsPort)
	if err != nil {
		return fmt.Errorf("invalid nats-addr port: %w", err)
	}
	ns, err := server.NewServer(&server.Options{Host: natsHost, Port: natsPortInt})
	if err != nil {
		return fmt.Errorf("could not start embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		return fmt.Errorf("embedded NATS server did not become ready")
	}
	defer ns.Shutdown()
	log.WithField("addr", natsAddr).Info("Embedded NATS server started")

	// 4. Connect to our own embedded NATS
	nc, err := messaging.Connect(ns.ClientURL())
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	// 5. Subscribe to Subjects
	if _, err := messaging.SubscribeCompiled(nc, compiledHandler(gormDB)); err != nil {
		return fmt.Errorf("failed to subscribe to compiled blueprints: %w", err)
	}
	if _, err := messaging.SubscribeHeartbeats(nc, livenessSvc.Heartbeat); err != nil {
		return fmt.Errorf("failed to subscribe to heartbeats: %w", err)
	}
	log.Info("Subscribed to compiled blueprints and engine heartbeats.")

	// 6. Start Chi HTTP Server
	client := github.NewClient(nil)
	if token := cmd.String("github-token"); token != "" {
		client = client.WithAuthToken(token)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r := api.NewRouter(api.Config{
		DB:        gormDB,
		Publisher: api.NATSPublisher{Conn: nc},
		Keys:      sshkeys.NewFetcher(client),
		Registry:  reg,
	})

	httpAddr := cmd.String("http-addr")
	log.WithField("addr", httpAddr).Info("HTTP server listening")
	return http.ListenAndServe(httpAddr, r)
}

// compiledHandler records blueprints compiled elsewhere, such as by knitc
// publish. Blueprints compiled by this server are already stored.
func compiledHandler(gormDB *gorm.DB) func(messaging.CompiledBlueprint) {
	return func(msg messaging.CompiledBlueprint) {
		c, err := db.NewCompilation(msg.Deployment)
		if err != nil {
			log.WithError(err).Error("Encoding compiled blueprint")
			return
		}
		if c.Digest != msg.Digest {
			log.WithFields(log.Fields{
				"run_id":   msg.RunID,
				"expected": msg.Digest,
				"actual":   c.Digest,
			}).Warn("Digest mismatch in compiled blueprint")
		}
		c.RunID = msg.RunID
		if err := db.SaveCompilation(gormDB, c); err != nil {
			log.WithError(err).Error("Saving compiled blueprint")
			return
		}
		log.WithFields(log.Fields{"run_id": msg.RunID, "namespace": c.Namespace}).Info("Recorded compiled blueprint")
	}
}
