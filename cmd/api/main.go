package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"collectflow/api"
	"collectflow/auth"
	"collectflow/config"
	"collectflow/mcpserver"
	"collectflow/migrations"
	"collectflow/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by all subcommands once the root has loaded config.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "collectflow",
		Short:         "Debt-collection workflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (default ./collectflow.yaml)")

	root.AddCommand(
		c.serveCmd(),
		c.runCmd(),
		c.sweepCmd(),
		c.workflowsCmd(),
		c.tokenCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	logger, err := newLogger(c.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), c.cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the MCP endpoint and the due-case sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	srv := api.NewServer(a.runner, a.runs, a.catalog, a.tokens, a.logger).WithPinger(a.pool)
	e := srv.NewEcho()

	if a.cfg.MCP.Enabled {
		mcpSrv := mcpserver.NewServer(mcpserver.Deps{Runner: a.runner, Catalog: a.catalog, Logger: a.logger})
		mux := http.NewServeMux()
		mcpSrv.MountHTTPHandlers(mux, a.tokens)
		e.Any("/mcp", echo.WrapHandler(mux))
		e.Any("/mcp/*", echo.WrapHandler(mux))
		a.logger.Info("MCP protocol handlers mounted")
	}

	if a.cfg.Scheduler.Enabled {
		sweeper := a.sweeper()
		if err := sweeper.Start(ctx, a.cfg.Scheduler.Cron); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			sweeper.Stop(stopCtx)
		}()
		a.logger.Info("due-case sweeper scheduled", "cron", a.cfg.Scheduler.Cron)
	}

	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * a.cfg.Workflow.GeneratorTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if server.WriteTimeout <= 0 {
		server.WriteTimeout = 2 * workflow.DefaultGeneratorTimeout
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func (c *cli) runCmd() *cobra.Command {
	var (
		workflowID string
		orgID      string
		resume     bool
	)
	cmd := &cobra.Command{
		Use:   "run <case-id>",
		Short: "Run a workflow against one case and print the run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				run, err := a.runner.Execute(ctx, workflow.ExecuteRequest{
					CaseID:         args[0],
					WorkflowID:     workflowID,
					OrganizationID: orgID,
					ActorID:        "cli",
					Resume:         resume,
				})
				if err != nil && run.ID == "" {
					return err
				}
				if werr := writeJSON(cmd.OutOrStdout(), run); werr != nil {
					return werr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "catalog id to force instead of automatic selection")
	cmd.Flags().StringVar(&orgID, "org", "", "require the case to belong to this organization")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip steps already completed for this case and workflow")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Resume workflows for every case whose next action is due, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				rep, err := a.sweeper().Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "due=%d started=%d skipped=%d failed=%d\n",
					rep.Due, rep.Started, rep.Skipped, rep.Failed)
				return nil
			})
		},
	}
}

func (c *cli) workflowsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List the workflow catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(c.cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), catalog.List())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tMAX LEVEL\tAUTO STOP")
			for _, d := range catalog.Summaries() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", d.ID, d.Name, d.StepCount,
					d.Settings.MaxEscalationLevel, d.Settings.AutoStopOnPayment)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full definitions as JSON")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var claims auth.Claims
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claims.Role = auth.Role(role)
			if claims.UserID == "" || claims.OrganizationID == "" {
				return errors.New("--user and --org are required")
			}
			if !claims.Role.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			token, err := auth.NewService(c.cfg.Auth.JWTSecret, c.cfg.Auth.TokenTTL).IssueToken(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&claims.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&claims.OrganizationID, "org", "", "organization id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleCollector), "viewer, collector, manager, admin or service")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				applied, err := migrations.Apply(ctx, a.pool)
				if err != nil {
					return err
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
				}
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
