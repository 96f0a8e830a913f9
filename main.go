package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zfskit/exportd/agent"
	"github.com/zfskit/exportd/model"
	"github.com/zfskit/exportd/share"
	"github.com/zfskit/exportd/share/nfs"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	level := zerolog.InfoLevel
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		if parsed, err := zerolog.ParseLevel(l); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	app := &cli.Command{
		Name:    model.AppName,
		Usage:   "manage ZFS NFS shares through /etc/exports.d",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Commands: []*cli.Command{
			{
				Name:   "agent",
				Usage:  "start the exportd HTTP agent",
				Action: runAgent,
			},
			{
				Name:      "share",
				Usage:     "enable NFS sharing for a mountpoint",
				ArgsUsage: "<mountpoint> [options]",
				Action:    runShare,
			},
			{
				Name:      "unshare",
				Usage:     "disable NFS sharing for a mountpoint",
				ArgsUsage: "<mountpoint>",
				Action:    runUnshare,
			},
			{
				Name:      "status",
				Usage:     "report whether a mountpoint is shared",
				ArgsUsage: "<mountpoint>",
				Action:    runStatus,
			},
			{
				Name:   "list",
				Usage:  "list the records of the exports file",
				Action: runList,
			},
			{
				Name:      "validate",
				Usage:     "check a share option string for syntax errors",
				ArgsUsage: "<options>",
				Action:    runValidate,
			},
			{
				Name:   "reload",
				Usage:  "make the kernel re-read the exports file",
				Action: runReload,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func runAgent(ctx context.Context, _ *cli.Command) error {
	log.Info().Str("version", version).Str("commit", commit).Msg("starting exportd agent")

	cfg, err := env.ParseAs[model.AgentConfig]()
	if err != nil {
		return fmt.Errorf("parse agent config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := agent.NewAgent(&cfg, version, commit)
	a.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// cliProtocol registers the NFS protocol from the CLI environment and looks
// it back up through the share registry.
func cliProtocol() (share.Protocol, error) {
	cfg, err := env.ParseAs[model.CLIConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	nfs.Register(cfg.ExportsFile, cfg.ExportfsBin)
	return share.Get(nfs.ProtocolName)
}

func runShare(ctx context.Context, cmd *cli.Command) error {
	mountpoint := cmd.Args().Get(0)
	if mountpoint == "" {
		return fmt.Errorf("usage: %s share <mountpoint> [options]", model.AppName)
	}
	opts := cmd.Args().Get(1)
	if opts == "" {
		opts = "on"
	}

	p, err := cliProtocol()
	if err != nil {
		return err
	}

	s := &share.Share{Mountpoint: mountpoint}
	if err := p.UpdateOptions(s, opts); err != nil {
		return err
	}
	if err := p.EnableShare(s); err != nil {
		return err
	}
	return p.CommitShares(ctx)
}

func runUnshare(ctx context.Context, cmd *cli.Command) error {
	mountpoint := cmd.Args().Get(0)
	if mountpoint == "" {
		return fmt.Errorf("usage: %s unshare <mountpoint>", model.AppName)
	}

	p, err := cliProtocol()
	if err != nil {
		return err
	}

	s := &share.Share{Mountpoint: mountpoint}
	if err := p.DisableShare(s); err != nil {
		return err
	}
	p.ClearOptions(s)
	return p.CommitShares(ctx)
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	mountpoint := cmd.Args().Get(0)
	if mountpoint == "" {
		return fmt.Errorf("usage: %s status <mountpoint>", model.AppName)
	}

	p, err := cliProtocol()
	if err != nil {
		return err
	}

	if p.IsShared(&share.Share{Mountpoint: mountpoint}) {
		fmt.Printf("%s is shared\n", mountpoint)
		return nil
	}
	fmt.Printf("%s is not shared\n", mountpoint)
	return nil
}

func runList(_ context.Context, _ *cli.Command) error {
	cfg, err := env.ParseAs[model.CLIConfig]()
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	p := nfs.New(cfg.ExportsFile, cfg.ExportfsBin)

	entries, err := p.ListExports()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Mountpoint, e.Host, e.Options)
	}
	return nil
}

func runValidate(_ context.Context, cmd *cli.Command) error {
	opts := cmd.Args().Get(0)
	if opts == "" {
		return fmt.Errorf("usage: %s validate <options>", model.AppName)
	}

	p, err := cliProtocol()
	if err != nil {
		return err
	}

	if err := p.ValidateOptions(opts); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runReload(ctx context.Context, _ *cli.Command) error {
	p, err := cliProtocol()
	if err != nil {
		return err
	}
	return p.CommitShares(ctx)
}
