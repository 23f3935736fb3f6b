package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lizzyg/gemrouter"
)

const defaultEmbeddingModel = "text-embedding-004"

func newEmbedCommand(a *app) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "embed [text...]",
		Short: "Print the embedding vector of a text as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.promptText(args)
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := c.EmbedContent(cmd.Context(), gemrouter.EmbedContentRequest{
				Model:    model,
				Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, text)},
			})
			if err != nil {
				return err
			}
			b, err := json.Marshal(resp.Embeddings)
			if err != nil {
				return fmt.Errorf("encode embeddings: %w", err)
			}
			fmt.Fprintln(a.io.Stdout, string(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", defaultEmbeddingModel, "embedding model name")
	return cmd
}
