package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notehub/internal"
	"github.com/starford/notehub/internal/console"
	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/parser"
	pkgconfig "github.com/starford/notehub/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openStack loads the config and builds the client stack. Logs go to stderr
// so stdout stays clean for command output.
func openStack(cmd *cli.Command) (*internal.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, _, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	return st, err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStack(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	params := models.QueryParams{
		Page:    int(cmd.Int("page")),
		PerPage: int(cmd.Int("per-page")),
		Search:  cmd.String("search"),
	}
	if tag := cmd.String("tag"); tag != "" {
		if params.Tag, err = models.ParseTag(tag); err != nil {
			return err
		}
	}
	if params.SortBy, err = models.ParseSortBy(cmd.String("sort")); err != nil {
		return err
	}

	page, err := st.Cache.Fetch(ctx, params)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	if cmd.Bool("json") {
		return printJSON(os.Stdout, page)
	}

	params = params.Normalize()
	if len(page.Notes) == 0 {
		fmt.Println("No notes found.")
		return nil
	}
	for _, n := range page.Notes {
		fmt.Printf("%s  [%s] %s\n", n.ID, n.Tag, n.Title)
	}
	if page.TotalPages > 1 {
		fmt.Printf("page %d/%d\n", params.Page, page.TotalPages)
	}
	return nil
}

func runCreate(ctx context.Context, cmd *cli.Command) error {
	draft := models.FormDraft{
		Title:   cmd.String("title"),
		Content: cmd.String("content"),
		Tag:     models.Tag(cmd.String("tag")),
	}
	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read draft: %w", err)
		}
		fromFile, err := parser.ParseDraft(data)
		if err != nil {
			return fmt.Errorf("read draft %s: %w", path, err)
		}
		// Flags override the file.
		if draft.Title == "" {
			draft.Title = fromFile.Title
		}
		if draft.Content == "" {
			draft.Content = fromFile.Content
		}
		if !cmd.IsSet("tag") && fromFile.Tag != "" {
			draft.Tag = fromFile.Tag
		}
	}

	st, err := openStack(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	note, err := st.Creator.Create(ctx, draft)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return printJSON(os.Stdout, note)
}

func runDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("delete: note id is required")
	}

	st, err := openStack(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	note, err := st.Deleter.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	fmt.Printf("deleted %s (%s)\n", note.ID, note.Title)
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Gateway.HTTP.Port = int(port)
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func runBrowse(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logOut := io.Discard
	if cmd.Bool("verbose") {
		logOut = os.Stderr
	}
	st, _, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(logOut))
	if err != nil {
		return err
	}
	defer st.Close()

	s := st.NewSession()
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(console.Help)
	return console.New(s, os.Stdout).Run(ctx, os.Stdin)
}

func main() {
	cmd := &cli.Command{
		Name:  "notehub",
		Usage: "Client for the NoteHub notes service: browse, search, create and delete notes",
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
				Name:   "list",
				Usage:  "Print one page of notes",
				Action: runList,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: models.DefaultPage},
					&cli.IntFlag{Name: "per-page", Value: models.DefaultPerPage},
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}},
					&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Todo, Work, Personal, Meeting or Shopping"},
					&cli.StringFlag{Name: "sort", Value: string(models.SortCreated), Usage: "created or updated"},
					&cli.BoolFlag{Name: "json", Usage: "Print the raw page as JSON"},
				},
			},
			{
				Name:   "create",
				Usage:  "Create a note from flags or a Markdown file",
				Action: runCreate,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "content"},
					&cli.StringFlag{Name: "tag", Value: string(models.TagTodo)},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Markdown draft with optional frontmatter"},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a note by id",
				ArgsUsage: "ID",
				Action:    runDelete,
			},
			{
				Name:   "serve",
				Usage:  "Run the local HTTP gateway",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "Override gateway.http.port"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: runMCP,
			},
			{
				Name:   "browse",
				Usage:  "Interactive list with live search and paging",
				Action: runBrowse,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Write logs to stderr"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
