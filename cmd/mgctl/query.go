package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
)

var (
	queryMachineID int64
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the ingested manuals",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.Int64Var(&queryMachineID, "machine-id", 0, "restrict retrieval to one authorized machine")
	f.BoolVar(&queryJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.app.Query.Ask(ctx, s.tenant, strings.Join(args, " "), queryMachineID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printAnswer(out, res)
	if res.Outcome == answer.OutcomeProviderFailure {
		return fmt.Errorf("provider failure: %s", res.FailureReason)
	}
	return nil
}

func printAnswer(out io.Writer, res answer.Result) {
	fmt.Fprintln(out, res.Answer)

	if len(res.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range res.Sources {
			fmt.Fprintf(out, "  - %s, page %d (score %.2f)\n", src.DocName, src.Page, src.Score)
		}
	}
	if res.HasImages() {
		fmt.Fprintln(out, "\nImages:")
		for _, img := range res.Images {
			fmt.Fprintf(out, "  - [%s] page %d: %s\n    %s\n", img.Relevance, img.Page, img.Caption, img.URL)
		}
	}
	fmt.Fprintf(out, "\n%s in %s (retrieval %s, generation %s), tokens %d/%d\n",
		res.Outcome,
		res.Timings.Total.Round(time.Millisecond),
		res.Timings.Retrieval.Round(time.Millisecond),
		res.Timings.Generation.Round(time.Millisecond),
		res.Tokens.Input, res.Tokens.Output,
	)
}
