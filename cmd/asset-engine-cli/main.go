// Package main provides the Asset Engine CLI entrypoint.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/cache"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/config"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/events"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/ingest"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/layout"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/objectstore"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/observability"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/ocr"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/render"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/storage"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "asset-engine-cli",
	Short: "Asset Engine CLI for document ingestion and asset management",
	Long: `Asset Engine CLI manages documents and their derived assets.

Use this tool to:
- Ingest documents and derive transcripts, page renders, and text spans
- Inspect and list stored document records
- Delete documents and their stored objects
- Initialize the database schema

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Best effort; env vars may come from the shell instead.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      resolveLogFormat(cfg.Observability.LogFormat, outputJSON),
			ServiceName: "asset-engine-cli",
		})

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// resolveLogFormat picks the log format from config; --json forces JSON
// so machine-readable output stays machine-readable.
func resolveLogFormat(configured string, jsonMode bool) string {
	if jsonMode {
		return "json"
	}
	if configured == "" {
		return "console"
	}
	return configured
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var (
		owner string
		file  string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a document and derive its assets",
		Long: `Ingest stores a document's raw bytes, then concurrently derives an OCR
transcript, per-page rendered images with a thumbnail, and positioned
text spans. Derivation failures are tolerated; the document record
completes with whatever was produced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			if name == "" {
				name = filepath.Base(file)
			}

			deps, err := buildDependencies(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			ui := NewUI(outputJSON, noColor)
			ui.Info("Ingesting %s (%d bytes) for %s", name, len(data), owner)

			doc, err := deps.Pipeline.Ingest(ctx, ingest.IngestRequest{
				OwnerID:     owner,
				DisplayName: name,
				Data:        data,
			})
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			if outputJSON {
				return printDocumentJSON(doc)
			}

			pageCount := 0
			if doc.PageCount != nil {
				pageCount = *doc.PageCount
			}
			ui.Success("Ingestion completed")
			fmt.Printf("  Document ID: %s\n", doc.ID)
			fmt.Printf("  Status: %s | Pages: %d | Transcript: %t | Spans: %d\n",
				doc.Status, pageCount, doc.OCRText != "", len(doc.TextSpans))
			if doc.ThumbnailURL != "" {
				fmt.Printf("  Thumbnail: %s\n", doc.ThumbnailURL)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to document file (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")

	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// newGetCmd creates the get subcommand.
func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}

			db, repo, err := openRepository()
			if err != nil {
				return err
			}
			defer db.Close()

			doc, err := repo.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}

			if outputJSON {
				return printDocumentJSON(doc)
			}

			printDocument(doc)
			return nil
		},
	}

	return cmd
}

// newListCmd creates the list subcommand.
func newListCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, repo, err := openRepository()
			if err != nil {
				return err
			}
			defer db.Close()

			docs, err := repo.ListByOwner(ctx, owner)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			if len(docs) == 0 {
				fmt.Println("No documents found")
				return nil
			}
			for _, doc := range docs {
				pageCount := 0
				if doc.PageCount != nil {
					pageCount = *doc.PageCount
				}
				fmt.Printf("%s  %-10s  %4d pages  %s\n", doc.ID, doc.Status, pageCount, doc.DisplayName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

// newDeleteCmd creates the delete subcommand.
func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document record and its stored objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}

			deps, err := buildDependencies(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Pipeline.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete document: %w", err)
			}

			ui := NewUI(outputJSON, noColor)
			ui.Success("Deleted document %s", id)
			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"deleted": id.String(),
				})
			}
			return nil
		},
	}

	return cmd
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Initialize the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.Info().
				Str("driver", cfg.Database.Driver).
				Msg("Running schema migration")

			if err := storage.EnsureSchema(ctx, db); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}

			ui := NewUI(outputJSON, noColor)
			ui.Success("Schema is up to date")
			return nil
		},
	}

	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.Encode(map[string]string{
					"version": "0.1.0",
				})
				return
			}
			fmt.Println("asset-engine-cli v0.1.0")
		},
	}
}

// dependencies bundles everything the pipeline commands need, so the
// connections can be closed together.
type dependencies struct {
	Pipeline *ingest.Pipeline

	db        *sql.DB
	cache     cache.Client
	publisher events.Publisher
}

func (d *dependencies) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// buildDependencies wires the pipeline from configuration.
func buildDependencies(ctx context.Context) (*dependencies, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	dedupCache, err := openCache(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	publisher, err := openPublisher(cfg)
	if err != nil {
		dedupCache.Close()
		db.Close()
		return nil, err
	}

	renderer := render.NewOrchestrator(
		render.NewInspector(cfg.Render.InspectorBin, cfg.Render.PageTimeout),
		render.NewCairoRenderer(cfg.Render.RendererBin, cfg.Render.PageTimeout),
		objects,
		logger,
		cfg.Render.MaxParallel,
	)

	pipeline := ingest.NewPipeline(
		logger,
		ingest.PipelineConfig{
			StageTimeout: cfg.Ingestion.StageTimeout,
			CacheTTL:     cfg.Cache.TTL,
		},
		storage.NewDocumentRepository(db),
		objects,
		dedupCache,
		publisher,
		ocr.NewClient(cfg.OCR),
		renderer,
		layout.NewExtractor(cfg.Layout.ToolBin, cfg.Layout.Timeout),
	)

	return &dependencies{
		Pipeline:  pipeline,
		db:        db,
		cache:     dedupCache,
		publisher: publisher,
	}, nil
}

// openRepository opens the database and wraps it in a repository for
// read-only commands.
func openRepository() (*sql.DB, *storage.DocumentRepository, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewDocumentRepository(db), nil
}

// openDatabase opens a database connection based on the configuration.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	var driver string
	switch cfg.Database.Driver {
	case "sqlite":
		driver = "sqlite3"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := sql.Open(driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		db.SetMaxOpenConns(cfg.Database.SQLite.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	}

	return db, nil
}

// openObjectStore creates the configured object store backend.
func openObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore.Driver {
	case "minio":
		return objectstore.NewMinIOStore(ctx, cfg.ObjectStore.MinIO)
	case "local":
		return objectstore.NewLocalStore(cfg.ObjectStore.Local.Root)
	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.ObjectStore.Driver)
	}
}

// openCache creates the configured dedup cache backend.
func openCache(cfg *config.Config) (cache.Client, error) {
	switch cfg.Cache.Driver {
	case "redis":
		return cache.NewRedisClient(cfg.Cache.Redis)
	case "memory":
		return cache.NewMemoryClient(0), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// openPublisher creates the event publisher, or a noop when disabled.
func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}, nil
	}
	return events.NewNATSPublisher(cfg.Events)
}

// printDocument renders a record for human consumption.
func printDocument(doc *storage.DocumentAsset) {
	fmt.Printf("Document:  %s\n", doc.ID)
	fmt.Printf("Owner:     %s\n", doc.OwnerID)
	fmt.Printf("Name:      %s\n", doc.DisplayName)
	fmt.Printf("Status:    %s\n", doc.Status)
	fmt.Printf("Size:      %d bytes\n", doc.SizeBytes)
	fmt.Printf("Uploaded:  %s\n", doc.UploadedAt.Format(time.RFC3339))
	if doc.ContentHash != "" {
		fmt.Printf("Hash:      %s\n", doc.ContentHash)
	}
	if doc.PageCount != nil {
		fmt.Printf("Pages:     %d\n", *doc.PageCount)
	}
	for _, page := range doc.PageAssets {
		fmt.Printf("  page %d: %s\n", page.PageNumber, page.AssetURL)
	}
	if doc.ThumbnailURL != "" {
		fmt.Printf("Thumbnail: %s (%s)\n", doc.ThumbnailURL, doc.ThumbnailKind)
	}
	if doc.OCRText != "" {
		fmt.Printf("Transcript: %d characters\n", len(doc.OCRText))
	}
	if len(doc.TextSpans) > 0 {
		fmt.Printf("Spans:     %d\n", len(doc.TextSpans))
	}
}

func printDocumentJSON(doc *storage.DocumentAsset) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
