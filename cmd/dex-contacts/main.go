package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/GraysonCAdams/dex-contacts/internal"
	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
	pkgconfig "github.com/GraysonCAdams/dex-contacts/pkg/config"
)

var version = "dev"

// stdout receives command output.
var stdout io.Writer = os.Stdout

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// setup loads the config and wires a runtime that logs to stderr, leaving
// stdout for command output.
func setup(cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Setup(
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version),
	)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func syncCmd(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("sync: note path is required")
	}
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cmd.IsSet("line") {
		res, err := rt.Service.SyncBlock(ctx, path, int(cmd.Int("line")), cmd.String("contact"), true)
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	results, err := rt.Service.SyncNote(ctx, path, true)
	if results == nil {
		results = []memo.Result{}
	}
	if perr := printJSON(results); perr != nil {
		return perr
	}
	return err
}

func status(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if path := cmd.Args().First(); path != "" {
		mentions, err := rt.Service.NoteStatus(ctx, path)
		if err != nil {
			return err
		}
		return printJSON(mentions)
	}

	if err := rt.Service.Reindex(ctx); err != nil {
		return err
	}
	vs, err := rt.Service.VaultStatus(ctx, index.MentionFilter{
		ContactID: cmd.String("contact"),
		Status:    cmd.String("status"),
		Limit:     int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	return printJSON(vs)
}

func strip(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	dryRun := cmd.Bool("dry-run")
	if dryRun && path == "" {
		return errors.New("strip: --dry-run needs a note path")
	}
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch {
	case dryRun:
		before, after, err := rt.Service.PreviewStrip(ctx, path)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(stdout, noteservice.Diff(before, after))
		return err
	case path != "":
		res, err := rt.Service.StripAnnotations(ctx, path)
		if err != nil {
			return err
		}
		return printJSON(res)
	default:
		res, err := rt.Service.StripVault(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	}
}

func listContacts(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cmd.Bool("refresh") {
		if err := rt.Service.RefreshContacts(ctx); err != nil {
			return err
		}
	}
	list, err := rt.Service.Contacts(ctx, cmd.Args().First(), int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return printJSON(list)
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 3 {
		return errors.New("resolve: usage: resolve <path> <query> <contact-id> --line N")
	}
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	line, err := rt.Service.ResolveMention(ctx, cmd.Args().Get(0), int(cmd.Int("line")), cmd.Args().Get(1), cmd.Args().Get(2))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, line)
	return err
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "dex-contacts",
		Usage:   "Link contact mentions in a Markdown vault to Dex and sync them as memos",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, vault watcher and contact refresher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
			{
				Name:      "sync",
				Usage:     "Sync one block (--line) or every pending mention of a note",
				ArgsUsage: "<path>",
				Action:    syncCmd,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "line", Aliases: []string{"l"}, Usage: "Zero-based start line of the block"},
					&cli.StringFlag{Name: "contact", Usage: "Contact id; defaults to the mention on the line"},
				},
			},
			{
				Name:      "status",
				Usage:     "Show mention sync status for a note or the whole vault",
				ArgsUsage: "[path]",
				Action:    status,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Filter: not-synced, synced or needs-resync"},
					&cli.StringFlag{Name: "contact", Usage: "Filter by contact id"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum mentions listed"},
				},
			},
			{
				Name:      "strip",
				Usage:     "Remove sync annotations from a note or the whole vault",
				ArgsUsage: "[path]",
				Action:    strip,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Print a patch instead of writing"},
				},
			},
			{
				Name:      "contacts",
				Usage:     "Search cached Dex contacts",
				ArgsUsage: "[query]",
				Action:    listContacts,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "refresh", Usage: "Refetch the list from Dex first"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum results"},
				},
			},
			{
				Name:      "resolve",
				Usage:     "Replace @query on a line with a link to a contact",
				ArgsUsage: "<path> <query> <contact-id>",
				Action:    resolve,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "line", Aliases: []string{"l"}, Usage: "Zero-based line number"},
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
