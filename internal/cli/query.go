package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/statementrag/rag/internal/app"
	"github.com/statementrag/rag/internal/console"
	"github.com/statementrag/rag/internal/tui"
)

var (
	searchTopK int
	searchJSON bool
	chatPlain  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed statements",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the statements nearest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question session",
	Long: `Starts the terminal UI when stdin and stdout are terminals and the line
console otherwise. Type 'exit' or 'quit' to stop.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default retriever.top_k)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "use the line console instead of the terminal UI")
	rootCmd.AddCommand(askCmd, searchCmd, chatCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.Pipeline.Query(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	k := searchTopK
	if k <= 0 {
		k = a.Retriever.TopK()
	}
	results, err := a.Store.SearchScored(cmd.Context(), strings.Join(args, " "), k)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if results == nil {
			return enc.Encode([]struct{}{})
		}
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "[%d] position=%d distance=%.4f\n", i+1, r.Position, r.Distance)
		for _, line := range strings.Split(r.Text, "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
	}
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return chat(cmd, a, chatPlain)
}

func chat(cmd *cobra.Command, a *app.App, plain bool) error {
	ctx := cmd.Context()
	if plain || !interactive(cmd) {
		return console.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.Pipeline, logger)
	}
	summary := fmt.Sprintf("%d statement(s) indexed, model %s", a.Store.Len(), a.Generator.ModelName())
	p := tea.NewProgram(tui.New(ctx, a.Pipeline, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func interactive(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd()))
}
