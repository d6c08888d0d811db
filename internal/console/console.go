// Package console implements the line-oriented question/answer loop.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
)

const (
	Banner    = "\nRAG console ready. Type 'exit' or 'quit' to stop.\n"
	Prompt    = "Question: "
	Goodbye   = "Exiting RAG console..."
	separator = "----------------------------------------"
)

// Run reads questions from in until exit, quit or EOF and writes each answer
// to out. A failed query is reported and the loop continues.
func Run(ctx context.Context, in io.Reader, out io.Writer, q domain.Querier, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("console")

	r := bufio.NewReader(in)

	fmt.Fprint(out, Banner+"\n")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, Prompt)
		raw, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		if line := strings.TrimSpace(raw); line != "" {
			switch strings.ToLower(line) {
			case "exit", "quit":
				fmt.Fprintln(out, Goodbye)
				return nil
			}
			if err := ask(ctx, out, q, line, logger); err != nil {
				return err
			}
		}
		if eof {
			fmt.Fprintln(out)
			return nil
		}
	}
}

// ask answers one question. Only cancellation is returned as an error.
func ask(ctx context.Context, out io.Writer, q domain.Querier, line string, logger *zap.Logger) error {
	answer, err := q.Query(ctx, line)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("query failed", zap.String("query", line), zap.Error(err))
		fmt.Fprintf(out, "error: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "\nANSWER:\n%s\n%s\n", answer, separator)
	return nil
}
