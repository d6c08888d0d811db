package cli

import (
	"github.com/spf13/cobra"

	"github.com/statementrag/rag/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := appConfig.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(a.Pipeline, a.Store, logger, server.Options{
		Addr:        addr,
		DefaultTopK: a.Retriever.TopK(),
	})
	return srv.ListenAndServe(cmd.Context())
}
