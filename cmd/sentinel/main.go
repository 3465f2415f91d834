package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sentinel/internal/client"
	"sentinel/internal/config"
	"sentinel/internal/domain"
	"sentinel/internal/engine"
	"sentinel/internal/server"
	"sentinel/internal/tui"
	"sentinel/internal/view"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel operations decision console",
	Long: `Sentinel submits support tickets to the Decision Service and shows the
structured decision, its QA evaluation and the log of past runs.

The service address comes from --api-base, then SENTINEL_API_BASE, then
sentinel.yml, then http://localhost:8000.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", config.Path("."), "config file")
	rootCmd.PersistentFlags().String("api-base", "", "Decision Service base URL")
	rootCmd.PersistentFlags().Duration("timeout", 0, "HTTP timeout (0 keeps the configured value)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("yaml", false, "output YAML")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log background activity to stderr")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("api-base", rootCmd.PersistentFlags().Lookup("api-base"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("yaml", rootCmd.PersistentFlags().Lookup("yaml"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(stubCmd())
}

func decideCmd() *cobra.Command {
	var file string
	var withHistory bool
	cmd := &cobra.Command{
		Use:   "decide [ticket text...]",
		Short: "Submit a ticket and print the decision",
		Long:  "Submit a ticket and print the decision. Text is read from the arguments, --file, or stdin when neither is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := ticketText(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, cfg *config.Config) error {
				e.SetText(text)
				res, err := e.Submit(ctx)
				if err != nil {
					if errors.Is(err, engine.ErrNotSubmittable) {
						return fmt.Errorf("ticket needs at least %d non-blank characters", domain.MinTicketLength)
					}
					return errors.New(engine.ErrorMessage(err))
				}
				e.Wait()
				if structured() {
					return printStructured(res)
				}
				renderSummary(os.Stdout, view.Summarize(res))
				if withHistory {
					snap := e.Snapshot()
					renderHistory(os.Stdout, view.HistoryRows(snap.Items, time.Local, time.Now()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read ticket text from file ('-' for stdin)")
	cmd.Flags().BoolVar(&withHistory, "with-history", false, "print the refreshed run history after the decision")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, cfg *config.Config) error {
				if limit <= 0 {
					limit = cfg.History.Limit
				}
				// Failures are logged by the engine; the listing degrades to empty.
				_, _ = e.RefreshHistory(ctx, limit)
				items := e.Snapshot().Items
				if structured() {
					return printStructured(items)
				}
				renderHistory(os.Stdout, view.HistoryRows(items, time.Local, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of runs (default from config)")
	return cmd
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Decision Service is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			h, err := newClient(cfg).Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %s", cfg.API.BaseURL, engine.ErrorMessage(err))
			}
			if structured() {
				return printStructured(h)
			}
			fmt.Printf("%s %s ok=%v (%s)\n", h.Service, h.Version, h.OK, cfg.API.BaseURL)
			return nil
		},
	}
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive decision console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), tui.Config{
				Service:      newClient(cfg),
				APIBase:      cfg.API.BaseURL,
				HistoryLimit: cfg.History.Limit,
				Logger:       newLogger(),
			})
		},
	}
}

func stubCmd() *cobra.Command {
	var addr, modelVersion string
	var failDecide, failHistory bool
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a local stand-in Decision Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			stub, err := server.New(server.Config{ModelVersion: modelVersion})
			if err != nil {
				return err
			}
			stub.InjectFaults(failDecide, failHistory)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			fmt.Printf("Serving stub Decision Service on http://%s (OpenAPI at /openapi.json)\n", ln.Addr())
			return serve(cmd.Context(), &http.Server{Handler: stub}, ln, shutdownGrace)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "model version reported in history")
	cmd.Flags().BoolVar(&failDecide, "fail-decide", false, "answer every decide with DECIDE_PIPELINE_FAILED")
	cmd.Flags().BoolVar(&failHistory, "fail-history", false, "answer every history call with HISTORY_FAILED")
	return cmd
}

// --- helpers ---

const shutdownGrace = 5 * time.Second

// serve runs srv on ln until ctx is done, then drains it for at most grace.
// A drain that does not finish in time is reported.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("api-base"); v != "" {
		cfg.API.BaseURL = v
	}
	if d := viper.GetDuration("timeout"); d > 0 {
		cfg.API.Timeout = d
	}
	return cfg, cfg.Validate()
}

func newClient(cfg *config.Config) *client.Client {
	c := client.New(cfg.API.BaseURL)
	c.Timeout = cfg.API.Timeout
	return c
}

func newLogger() *log.Logger {
	if viper.GetBool("verbose") {
		return log.New(os.Stderr, "sentinel: ", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e := engine.New(newClient(cfg), engine.Options{
		HistoryLimit: cfg.History.Limit,
		Logger:       newLogger(),
	})
	return fn(ctx, e, cfg)
}

func ticketText(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 0 && file != "":
		return "", fmt.Errorf("pass ticket text as arguments or --file, not both")
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file != "" && file != "-":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read ticket from stdin: %w", err)
		}
		return string(b), nil
	}
}
