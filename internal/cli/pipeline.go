package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/app"
)

var (
	extractForce bool
	ingestNew    bool
	runPlain     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract statement fields from images",
	Long: `Sends every image in extractor.images_dir to the vision model and writes
one <name>_parsed.json record per image into ingest.input_dir. Extraction is
skipped when record files already exist unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index extracted records into the vector store",
	Long: `Loads every record file in ingest.input_dir, flattens it to text and
appends it to the vector store. Without --only-new every run appends all
records again.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, index and start the question console",
	Args:  cobra.NoArgs,
	RunE:  runAll,
}

func init() {
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "extract even if record files exist")
	ingestCmd.Flags().BoolVar(&ingestNew, "only-new", false, "skip chunks already in the store")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "use the line console instead of the terminal UI")
	rootCmd.AddCommand(extractCmd, ingestCmd, runCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	x := app.NewExtractor(appConfig, logger)
	run := x.RunIfNeeded
	if extractForce {
		run = x.ProcessAll
	}
	results, err := run(cmd.Context())
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d record(s) into %s\n", len(results), appConfig.Ingest.InputDir)
	return nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	added, err := a.Indexer(ingestNew).Build(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d document(s), %d total\n", added, a.Store.Len())
	return nil
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if _, err := app.NewExtractor(appConfig, logger).RunIfNeeded(ctx); err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	added, err := a.Indexer(false).Build(ctx)
	if err != nil {
		return err
	}
	logger.Info("index ready", zap.Int("added", added), zap.Int("total", a.Store.Len()))
	return chat(cmd, a, runPlain)
}
