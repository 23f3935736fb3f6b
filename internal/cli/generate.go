package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizzyg/gemrouter"
	"github.com/lizzyg/gemrouter/internal/retry"
)

type generateFlags struct {
	model       string
	system      string
	stream      bool
	jsonOutput  bool
	temperature float32
	topP        float32
	maxTokens   int32
	retries     int
}

func newGenerateCommand(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate content for a prompt (read from stdin when omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := a.promptText(args)
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			req := f.request(cmd, prompt)
			if f.stream {
				return a.stream(cmd.Context(), c, req)
			}

			var resp *gemrouter.GenerateContentResponse
			err = retry.Do(cmd.Context(), a.retryConfig(f.retries), func(ctx context.Context) error {
				var callErr error
				resp, callErr = c.GenerateContent(ctx, req)
				return callErr
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.io.Stdout, resp.Text())
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "model name (default: GEMINI_MODEL, settings model.name, or "+defaultModel()+")")
	fl.StringVarP(&f.system, "system", "s", "", "system instruction")
	fl.BoolVar(&f.stream, "stream", false, "print the answer as it arrives")
	fl.BoolVar(&f.jsonOutput, "json", false, "ask for a JSON answer")
	fl.Float32Var(&f.temperature, "temperature", 0, "sampling temperature")
	fl.Float32Var(&f.topP, "top-p", 0, "nucleus sampling probability")
	fl.Int32Var(&f.maxTokens, "max-tokens", 0, "maximum output tokens")
	fl.IntVar(&f.retries, "retries", 0, "retry rate-limited and server errors this many times (not applied to --stream)")
	return cmd
}

func (f generateFlags) request(cmd *cobra.Command, prompt string) gemrouter.GenerateContentRequest {
	req := gemrouter.GenerateContentRequest{
		Model:    f.model,
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, prompt)},
	}
	if f.system != "" {
		sys := gemrouter.Text(gemrouter.RoleSystem, f.system)
		req.Config.SystemInstruction = &sys
	}
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		req.Config.Temperature = &t
	}
	if cmd.Flags().Changed("top-p") {
		p := f.topP
		req.Config.TopP = &p
	}
	req.Config.MaxOutputTokens = f.maxTokens
	if f.jsonOutput {
		req.Config.ResponseMIMEType = "application/json"
	}
	return req
}

func (a *app) stream(ctx context.Context, c *gemrouter.Client, req gemrouter.GenerateContentRequest) error {
	for resp, err := range c.GenerateContentStream(ctx, req) {
		if err != nil {
			fmt.Fprintln(a.io.Stdout)
			return err
		}
		fmt.Fprint(a.io.Stdout, resp.Text())
	}
	fmt.Fprintln(a.io.Stdout)
	return nil
}

func (a *app) retryConfig(retries int) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = max(retries, 0) + 1
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.logger.Warn("retrying", slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("err", err))
	}
	return cfg
}
