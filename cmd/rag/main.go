package main

import "github.com/statementrag/rag/internal/cli"

func main() {
	cli.Execute()
}
