package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lizzyg/gemrouter"
	"github.com/lizzyg/gemrouter/internal/retry"
)

func newCountTokensCommand(a *app) *cobra.Command {
	var (
		model   string
		retries int
	)
	cmd := &cobra.Command{
		Use:   "count-tokens [text...]",
		Short: "Count the tokens of a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.promptText(args)
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			req := gemrouter.CountTokensRequest{
				Model:    model,
				Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, text)},
			}
			var resp *gemrouter.CountTokensResponse
			err = retry.Do(cmd.Context(), a.retryConfig(retries), func(ctx context.Context) error {
				var callErr error
				resp, callErr = c.CountTokens(ctx, req)
				return callErr
			})
			if err != nil {
				return err
			}
			if resp.Estimated {
				fmt.Fprintf(a.io.Stdout, "%d (estimated)\n", resp.TotalTokens)
				return nil
			}
			fmt.Fprintln(a.io.Stdout, resp.TotalTokens)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name")
	cmd.Flags().IntVar(&retries, "retries", 0, "retry rate-limited and server errors this many times")
	return cmd
}
