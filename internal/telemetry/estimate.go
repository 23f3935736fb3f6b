package telemetry

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lizzyg/gemrouter/internal/core"
)

// Estimator approximates the token count of a text. ok is false when no
// estimate could be made.
type Estimator interface {
	Estimate(text string) (n int, ok bool)
}

// EncodingName is the tiktoken encoding used by TiktokenEstimator.
const EncodingName = "cl100k_base"

// TiktokenEstimator counts tokens with a BPE encoding loaded on first use.
// The encoding is not Gemini's tokenizer; estimates are for telemetry only.
type TiktokenEstimator struct {
	Logger *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (e *TiktokenEstimator) Estimate(text string) (int, bool) {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(EncodingName)
		if err != nil {
			logger := e.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("token estimator unavailable", slog.String("encoding", EncodingName), slog.Any("err", err))
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return 0, false
	}
	return len(e.enc.Encode(text, nil, nil)), true
}

// estimateUsage builds a usage record from prompt and completion text.
func estimateUsage(est Estimator, prompt, completion string) (*core.UsageMetadata, bool) {
	if est == nil {
		return nil, false
	}
	p, ok := est.Estimate(prompt)
	if !ok {
		return nil, false
	}
	c, ok := est.Estimate(completion)
	if !ok {
		return nil, false
	}
	return &core.UsageMetadata{
		PromptTokenCount:     int32(p),
		CandidatesTokenCount: int32(c),
		TotalTokenCount:      int32(p + c),
	}, true
}

func contentsText(system *core.Content, contents []core.Content) string {
	var b strings.Builder
	if system != nil {
		for _, p := range system.Parts {
			b.WriteString(p.Text)
		}
	}
	for _, c := range contents {
		for _, p := range c.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
