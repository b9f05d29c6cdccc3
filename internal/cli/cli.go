package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/retreat-events/internal/config"
	"github.com/pfrederiksen/retreat-events/internal/ingest"
	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/server"
)

const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitSourceFailed = 2
)

// ErrSourceFailed is returned by a non-dry run when the run completed but at
// least one source could not be read. Dry runs only report source errors.
var ErrSourceFailed = errors.New("one or more sources failed")

var (
	flagConfig      string
	flagVerbose     bool
	flagDry         bool
	flagSource      string
	flagFeedLimit   int
	flagDetailLimit int
	flagFormat      string
	flagSort        string
	flagPort        int
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retreat-events",
		Short: "Collect Hungarian retreat events into one table",
		Long: `A tool that reads retreat announcements from RSS/Atom feeds and a
listing site, extracts dates, venues and contacts, and upserts the
deduplicated records into the configured store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ./retreat-events.yaml)")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(), newServeCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion and print a summary",
		Args:  cobra.NoArgs,
		RunE:  runIngest,
	}

	cmd.Flags().BoolVar(&flagDry, "dry", false, "Extract and deduplicate without writing; print a sample")
	cmd.Flags().StringVar(&flagSource, "source", "all", "Sources to read: feed, listing or all")
	cmd.Flags().IntVar(&flagFeedLimit, "feed-limit", 0, "Max items per feed (default from config)")
	cmd.Flags().IntVar(&flagDetailLimit, "detail-limit", 0, "Max listing detail pages (default from config)")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text, json or ics")
	cmd.Flags().StringVar(&flagSort, "sort", "date", "Sample order: date, title or location")

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP ingest trigger",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().IntVar(&flagPort, "port", 0, "Listen port (default from config)")

	return cmd
}

// runIngest is the run command logic
func runIngest(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if !format.valid() {
		return fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'ics')", flagFormat)
	}
	if format == FormatICS && !flagDry {
		return fmt.Errorf("--format ics requires --dry")
	}
	order := SortOrder(strings.ToLower(flagSort))
	if !order.valid() {
		return fmt.Errorf("invalid sort: %s (must be 'date', 'title' or 'location')", flagSort)
	}
	sources, err := ingest.ParseSources(flagSource)
	if err != nil {
		return err
	}
	if flagFeedLimit < 0 || flagDetailLimit < 0 {
		return fmt.Errorf("limits must not be negative")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	setupLogging(cfg, flagVerbose, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, closeStore, err := buildPipeline(ctx, cfg, !flagDry)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Closing store failed", logger.Fields{"error": err.Error()})
		}
	}()

	opts := defaultOptions(cfg)
	opts.Dry = flagDry
	opts.Sources = sources
	if flagFeedLimit > 0 {
		opts.PerFeedItemLimit = flagFeedLimit
	}
	if flagDetailLimit > 0 {
		opts.ListingDetailPageLimit = flagDetailLimit
	}

	sum, runErr := pipeline.Run(ctx, opts)
	if sum != nil {
		sortRetreats(sum.Sample, order)
		if err := WriteOutput(cmd.OutOrStdout(), sum, format, flagVerbose); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if !flagDry && len(sum.SourceErrors) > 0 {
		return ErrSourceFailed
	}
	return nil
}

// runServe is the serve command logic
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagPort > 0 {
		cfg.Server.Port = flagPort
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	setupLogging(cfg, flagVerbose, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, closeStore, err := buildPipeline(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Closing store failed", logger.Fields{"error": err.Error()})
		}
	}()

	srv := server.New(pipeline, cfg.Server.Token, defaultOptions(cfg))
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	return srv.ListenAndServe(ctx, addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}

// Execute runs the CLI
func Execute() {
	err := NewRootCmd().Execute()
	switch {
	case err == nil:
		os.Exit(ExitSuccess)
	case errors.Is(err, ErrSourceFailed):
		os.Exit(ExitSourceFailed)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
