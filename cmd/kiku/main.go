// Package main is the kiku CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/server"
	"github.com/hyperjump/kiku/internal/service"
	"github.com/hyperjump/kiku/internal/watcher"
	"github.com/hyperjump/kiku/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kiku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When the default path does not exist either, built-in defaults are returned with an
// empty path, so nothing is ever saved back.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// app carries the persistent flags shared by every subcommand.
type app struct {
	configPath string
	debug      bool
	serverURL  string
	output     string
}

func (a *app) format() (cli.OutputFormat, error) {
	return cli.ParseFormat(a.output)
}

func (a *app) client() *apiClient {
	return newAPIClient(a.serverURL, 10*time.Minute)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kiku",
		Short:         "Ask questions about PDF documents",
		Long:          "kiku ingests PDF documents and answers questions about them with retrieval-augmented generation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", envOr("KIKU_CONFIG", defaultConfigPath), "config file path")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.serverURL, "server", envOr("KIKU_SERVER", defaultServerURL), "server URL for client commands")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		a.serverCmd(),
		a.askCmd(),
		a.uploadCmd(),
		a.documentsCmd(),
		a.getCmd(),
		a.deleteCmd(),
		a.chatCmd(),
		a.historyCmd(),
		a.statusCmd(),
		a.watchCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kiku version %s\n", version)
		},
	}
}

func (a *app) serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServer()
		},
	}
}

func (a *app) runServer() error {
	cfg, resolvedConfigPath, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || a.debug
	logger, err := utils.NewLogger(debugMode, zap.String("version", version))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Error("Failed to initialize components", zap.Error(err))
		return err
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := watcher.NewInbox(ctx, components.Service, cfg.Server.MaxUploadBytes, logger)
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		inbox.HandleFile,
		inbox.HandleRemove,
		watchOpts...,
	)
	if err := watchSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watchSvc.Stop()
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(components.Service, &cfg.Server, logger, watchSvc, resolvedConfigPath, cfg)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func (a *app) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <pdf> <question>",
		Short: "Answer a question about a PDF without a server",
		Long: `Ingest the PDF in-process and answer one question about it.
The question is all remaining arguments joined by spaces.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			return a.runAsk(cmd.Context(), cmd, args[0], joinArgs(args[1:]), format)
		},
	}
}

func (a *app) runAsk(ctx context.Context, cmd *cobra.Command, path, question string, format cli.OutputFormat) error {
	if ctx == nil {
		ctx = context.Background()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	cfg, _, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// One-shot runs wait for ingestion and never persist raw bytes.
	cfg.Ingest.Async = false
	cfg.Storage.BlobDatabasePath = ""

	logger := zap.NewNop()
	if cfg.Debug || a.debug {
		if logger, err = utils.NewLogger(true); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug || a.debug)
	if err != nil {
		return err
	}
	defer components.Close()

	doc, err := components.Service.Upload(ctx, service.UploadInput{
		Filename:    filepath.Base(path),
		ContentType: service.PDFContentType,
		Content:     content,
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	turn, err := components.Service.Chat(ctx, doc.ID, question)
	if err != nil {
		return err
	}
	return cli.WriteAnswer(cmd.OutOrStdout(), models.NewAnswer(turn), format)
}

func (a *app) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <pdf>",
		Short: "Upload a PDF to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			doc, err := a.client().Upload(args[0], content)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			return cli.WriteDocument(cmd.OutOrStdout(), doc, format)
		},
	}
}

func (a *app) documentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List uploaded documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			docs, err := a.client().Documents()
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, format)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document and its ingestion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			doc, err := a.client().Document(args[0])
			if err != nil {
				return err
			}
			return cli.WriteDocument(cmd.OutOrStdout(), doc, format)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Delete(args[0]); err != nil {
				return fmt.Errorf("deletion failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document deleted: %s\n", args[0])
			return nil
		},
	}
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <document-id> <question>",
		Short: "Ask a question about an uploaded document",
		Long:  "The question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			answer, err := a.client().Chat(args[0], joinArgs(args[1:]))
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Show the conversation about a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			turns, err := a.client().History(args[0])
			if err != nil {
				return err
			}
			return cli.WriteHistory(cmd.OutOrStdout(), turns, format)
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server document counts and providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			st, err := a.client().Status()
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), *st, format)
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Manage inbox directories on the server",
	}
	watch.AddCommand(
		&cobra.Command{
			Use:   "add <path>",
			Short: "Add an inbox directory and upload the PDFs already in it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := a.client().AddWatchDirectory(path); err != nil {
					return fmt.Errorf("add failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Stop watching an inbox directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := a.client().RemoveWatchDirectory(path); err != nil {
					return fmt.Errorf("remove failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List inbox directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dirs, err := a.client().WatchDirectories()
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}
				for _, d := range dirs {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			},
		},
	)
	return watch
}

// joinArgs joins positional args with spaces so multi-word questions work the same with
// or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
