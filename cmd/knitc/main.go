package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/go-github/v74/github"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/knitplan/internal/catalog"
	"github.com/atvirokodosprendimai/knitplan/internal/db"
	"github.com/atvirokodosprendimai/knitplan/internal/manifest"
	"github.com/atvirokodosprendimai/knitplan/internal/messaging"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
	"github.com/atvirokodosprendimai/knitplan/internal/sshkeys"
)

func main() {
	cmd := &cli.Command{
		Name:  "knitc",
		Usage: "Compile Knit blueprints into the deployment IR.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.StringFlag{Name: "github-token", Usage: "GitHub token for githubKeys lookups", Sources: cli.EnvVars("GITHUB_TOKEN")},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "compile",
				Usage:     "Compile a blueprint and print its IR",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the IR to this file instead of stdout"},
				},
				Action: runCompile,
			},
			{
				Name:      "publish",
				Usage:     "Compile a blueprint and publish it to the deployment engines",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "nats-url", Value: "nats://127.0.0.1:4222", Usage: "NATS server URL", Sources: cli.EnvVars("KNIT_NATS_URL")},
				},
				Action: runPublish,
			},
			{
				Name:      "sizes",
				Usage:     "List the machine sizes of a provider",
				ArgsUsage: "PROVIDER",
				Action:    runSizes,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func keySource(cmd *cli.Command) manifest.KeySource {
	client := github.NewClient(nil)
	if token := cmd.String("github-token"); token != "" {
		client = client.WithAuthToken(token)
	}
	return sshkeys.NewFetcher(client)
}

func compileFile(ctx context.Context, cmd *cli.Command) (*spec.Deployment, error) {
	path := cmd.Args().First()
	if path == "" {
		return nil, cli.Exit("a blueprint FILE is required", 2)
	}
	doc, err := manifest.ParseFile(path)
	if err != nil {
		return nil, err
	}
	d, err := manifest.Compile(ctx, doc, keySource(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}
	return d, nil
}

func runCompile(ctx context.Context, cmd *cli.Command) error {
	d, err := compileFile(ctx, cmd)
	if err != nil {
		return err
	}
	out, err := spec.Encode(d)
	if err != nil {
		return err
	}

	if path := cmd.String("out"); path != "" {
		if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write IR: %w", err)
		}
		log.WithFields(log.Fields{"path": path, "digest": db.Digest(out)}).Info("Wrote IR")
		return nil
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	d, err := compileFile(ctx, cmd)
	if err != nil {
		return err
	}
	c, err := db.NewCompilation(d)
	if err != nil {
		return err
	}

	nc, err := messaging.Connect(cmd.String("nats-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	err = messaging.PublishCompiled(nc, messaging.CompiledBlueprint{
		RunID:      c.RunID,
		Namespace:  c.Namespace,
		Digest:     c.Digest,
		Deployment: d,
	})
	if err != nil {
		return err
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	fmt.Println(c.RunID)
	return nil
}

func runSizes(ctx context.Context, cmd *cli.Command) error {
	provider := cmd.Args().First()
	descs, err := catalog.Descriptions(provider)
	if err != nil {
		return err
	}
	region, err := catalog.DefaultRegion(provider)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "# default region: %s\n", region)
	fmt.Fprintln(w, "SIZE\tCPU\tRAM\tPRICE\tAUTO")
	for _, d := range descs {
		fmt.Fprintf(w, "%s\t%d\t%g\t%.4f\t%t\n", d.Size, d.CPU, d.RAM, d.Price, !d.Ignored)
	}
	return w.Flush()
}
