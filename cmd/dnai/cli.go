package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ops"
	"github.com/zzeiidann/DNAI/internal/prefs"
	"github.com/zzeiidann/DNAI/internal/web"
)

// backendClient is everything the commands need from the DNAI backend.
type backendClient interface {
	ops.Analyzer
	ops.Chatter
	ops.Authenticator
	Health(ctx context.Context) (*backend.HealthStatus, error)
}

// cliEnv carries the loaded state into every command.
type cliEnv struct {
	st      *ops.State
	cfg     *config.Config
	backend backendClient
	logger  *zap.Logger
	stdin   io.Reader // nil means os.Stdin
}

func (e *cliEnv) input() io.Reader {
	if e.stdin != nil {
		return e.stdin
	}
	return os.Stdin
}

// newCLIApp creates the CLI application with all commands. env may be nil
// when only help or version output is needed.
func newCLIApp(env *cliEnv) *cli.App {
	app := &cli.App{
		Name:    "dnai",
		Usage:   "Calorie ledger and nutrition chat",
		Version: Version,
		Commands: []*cli.Command{
			addCmd(env),
			deleteCmd(env),
			entriesCmd(env),
			summaryCmd(env),
			analyzeCmd(env),
			chatCmd(env),
			conversationsCmd(env),
			loginCmd(env),
			registerCmd(env),
			logoutCmd(env),
			whoamiCmd(env),
			themeCmd(env),
			exportCmd(env),
			importCmd(env),
			healthCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func addCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Record a food entry by hand",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Food name", Required: true},
			&cli.StringFlag{Name: "calories", Aliases: []string{"c"}, Usage: "Calories (kcal)"},
			&cli.StringFlag{Name: "protein", Aliases: []string{"p"}, Usage: "Protein (g)"},
			&cli.StringFlag{Name: "carbs", Usage: "Carbohydrates (g)"},
			&cli.StringFlag{Name: "fat", Usage: "Fat (g)"},
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day as YYYY-MM-DD (default today)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.AddEntry(c.Context, env.st.Ledger, ops.AddEntryInput{
				Name:     c.String("name"),
				Calories: c.String("calories"),
				Protein:  c.String("protein"),
				Carbs:    c.String("carbs"),
				Fat:      c.String("fat"),
				Date:     c.String("date"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func deleteCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a food entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteEntry(c.Context, env.st.Ledger, ops.DeleteEntryInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func entriesCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List one day's entries with totals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day as YYYY-MM-DD (default today)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListEntries(env.st.Ledger, ops.ListEntriesInput{Date: c.String("date")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func summaryCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Show totals and progress toward the daily goal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day as YYYY-MM-DD (default today)"},
			&cli.IntFlag{Name: "goal", Aliases: []string{"g"}, Usage: "Calorie goal (default from config)"},
			&cli.IntFlag{Name: "recent", Aliases: []string{"r"}, Usage: "Number of recent entries"},
			&cli.BoolFlag{Name: "text", Usage: "Print a readable summary instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Summary(env.st.Ledger, env.cfg, ops.SummaryInput{
				Date:   c.String("date"),
				Goal:   c.Int("goal"),
				Recent: c.Int("recent"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("text") {
				writeSummaryText(c.App.Writer, output)
				return nil
			}
			return outputJSON(c, output)
		},
	}
}

// writeSummaryText renders a summary for a terminal.
func writeSummaryText(w io.Writer, s *ops.SummaryOutput) {
	fmt.Fprintf(w, "%s  %s / %s kkal (%.0f%%)\n", s.Date,
		humanize.Comma(int64(s.Totals.Calories)), humanize.Comma(int64(s.Goal)), math.Round(s.Progress))
	if s.Remaining >= 0 {
		fmt.Fprintf(w, "sisa %s kkal\n", humanize.Comma(int64(s.Remaining)))
	} else {
		fmt.Fprintf(w, "lebih %s kkal\n", humanize.Comma(int64(-s.Remaining)))
	}
	fmt.Fprintf(w, "protein %s g, karbohidrat %s g, lemak %s g\n",
		grams(s.Totals.Protein), grams(s.Totals.Carbs), grams(s.Totals.Fat))
	for _, e := range s.Recent {
		fmt.Fprintf(w, "  %s  %s kkal  %s\n", e.Name, humanize.Comma(int64(e.Calories)), humanize.Time(e.Date))
	}
}

func grams(v float64) string {
	return strings.TrimSuffix(humanize.FormatFloat("#,###.#", v), ".0")
}

func analyzeCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Recognize the food in a photo",
		ArgsUsage: "<image path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "track", Aliases: []string{"t"}, Usage: "Also record the result as an entry"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(errors.NewInvalidRequest("image path is required"))
			}
			f, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					return outputError(errors.NewNotFound("file", path))
				}
				return outputError(errors.NewInternal(err))
			}
			defer f.Close()

			output, err := ops.AnalyzeFood(c.Context, env.backend, env.st.Ledger, env.cfg, ops.AnalyzeFoodInput{
				Filename: filepath.Base(path),
				Image:    f,
				Track:    c.Bool("track"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func chatCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Ask the nutrition assistant (message as args or via stdin)",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}, Usage: "Conversation id (default active)"},
		},
		Action: func(c *cli.Context) error {
			message := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(message) == "" && (env.stdin != nil || stdinHasData()) {
				text, err := readAll(env.input())
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				message = text
			}

			output, err := ops.SendChat(c.Context, env.st.Chat, env.backend, ops.SendChatInput{
				Message:        message,
				ConversationID: c.String("conversation"),
			})
			if err != nil {
				return outputError(err)
			}
			if output.Failed {
				env.logger.Warn("chat backend failed", zap.String("error", output.Error))
			}
			return outputJSON(c, output)
		},
	}
}

func conversationsCmd(env *cliEnv) *cli.Command {
	byID := func(name, usage string, fn func(c *cli.Context, id string) (any, error)) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<id>",
			Action: func(c *cli.Context) error {
				output, err := fn(c, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c, output)
			},
		}
	}

	return &cli.Command{
		Name:    "conversations",
		Aliases: []string{"conv"},
		Usage:   "Manage chat threads",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List threads, most recently updated first",
				Action: func(c *cli.Context) error {
					return outputJSON(c, ops.ListConversations(env.st.Chat))
				},
			},
			{
				Name:  "new",
				Usage: "Start a new thread and make it active",
				Action: func(c *cli.Context) error {
					conv, err := ops.CreateConversation(c.Context, env.st.Chat)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, conv)
				},
			},
			byID("show", "Show a thread's messages (default active)", func(_ *cli.Context, id string) (any, error) {
				return ops.GetConversation(env.st.Chat, ops.ConversationInput{ID: id})
			}),
			byID("select", "Make a thread active", func(c *cli.Context, id string) (any, error) {
				return ops.SelectConversation(c.Context, env.st.Chat, ops.ConversationInput{ID: id})
			}),
			byID("reset", "Clear a thread back to the greeting", func(c *cli.Context, id string) (any, error) {
				return ops.ResetConversation(c.Context, env.st.Chat, ops.ConversationInput{ID: id})
			}),
			byID("delete", "Delete a thread", func(c *cli.Context, id string) (any, error) {
				return ops.DeleteConversation(c.Context, env.st.Chat, ops.ConversationInput{ID: id})
			}),
		},
	}
}

func loginCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in (password via --password or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Account password"},
		},
		Action: func(c *cli.Context) error {
			password, err := passwordFrom(c, env)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Login(c.Context, env.backend, env.st.Session, ops.LoginInput{
				Email:    c.String("email"),
				Password: password,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func registerCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account (password via --password or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Account password"},
			&cli.StringFlag{Name: "confirm", Usage: "Password confirmation (default same as password)"},
		},
		Action: func(c *cli.Context) error {
			password, err := passwordFrom(c, env)
			if err != nil {
				return outputError(err)
			}
			confirm := password
			if c.IsSet("confirm") {
				confirm = c.String("confirm")
			}
			output, err := ops.Register(c.Context, env.backend, ops.RegisterInput{
				Username:        c.String("username"),
				Email:           c.String("email"),
				Password:        password,
				ConfirmPassword: confirm,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// passwordFrom takes --password, falling back to the first line of piped stdin.
func passwordFrom(c *cli.Context, env *cliEnv) (string, error) {
	if c.IsSet("password") {
		return c.String("password"), nil
	}
	if env.stdin == nil && !stdinHasData() {
		return "", errors.NewInvalidRequest("password must be given with --password or piped via stdin")
	}
	text, err := readAll(env.input())
	if err != nil {
		return "", errors.NewInternal(err)
	}
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimRight(line, "\r"), nil
}

func logoutCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session",
		Action: func(c *cli.Context) error {
			if err := ops.Logout(c.Context, env.st.Session); err != nil {
				return outputError(err)
			}
			return outputJSON(c, ops.WhoAmI(env.st.Session))
		},
	}
}

func whoamiCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(c *cli.Context) error {
			return outputJSON(c, ops.WhoAmI(env.st.Session))
		},
	}
}

func themeCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or change the web UI theme",
		ArgsUsage: "[dark|light|toggle]",
		Action: func(c *cli.Context) error {
			var (
				theme prefs.Theme
				err   error
			)
			switch arg := c.Args().First(); arg {
			case "":
				theme, err = prefs.GetTheme(c.Context, env.st.KV)
			case "toggle":
				theme, err = prefs.ToggleTheme(c.Context, env.st.KV)
			default:
				theme, err = prefs.ParseTheme(arg)
				if err == nil {
					err = prefs.SetTheme(c.Context, env.st.KV, theme)
				}
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]prefs.Theme{"theme": theme})
		},
	}
}

func exportCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export entries and conversations to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path"},
			&cli.StringFlag{Name: "only", Usage: "Export one kind: entry|conversation"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env.st, env.cfg, ops.ExportInput{
				Path: c.String("path"),
				Only: c.String("only"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func importCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSONL export or a calorieData .json dump",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|skip|replace"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, env.st, env.cfg, ops.ImportInput{
				Path: c.Args().First(),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func healthCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the backend is reachable",
		Action: func(c *cli.Context) error {
			status, err := env.backend.Health(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, status)
		},
	}
}

func serveCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Listen address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			cfg := *env.cfg
			if c.IsSet("bind") {
				cfg.WebBind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.WebPort = c.Int("port")
			}
			if cfg.WebPort <= 0 || cfg.WebPort > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.WebPort)))
			}

			deps := web.Deps{State: env.st, Analyzer: env.backend, Chatter: env.backend, Auth: env.backend}
			srv, err := web.NewServer(deps, &cfg, Version, env.logger)
			if err != nil {
				return outputError(err)
			}
			if err := web.Run(srv, env.logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes result to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	e := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
