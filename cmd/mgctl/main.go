// Command mgctl is the operator CLI: ingest manuals from disk, watch an inbox,
// ask questions and mint tenant tokens.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
