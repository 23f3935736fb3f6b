package translate

import (
	"encoding/json"
	"math"

	"github.com/lizzyg/gemrouter/internal/core"
)

// charsPerToken is the heuristic ratio used when no counting endpoint exists.
const charsPerToken = 4

// EstimateTokens approximates the token count of contents as
// ceil(len(JSON(contents)) / 4). Empty input counts as zero.
func EstimateTokens(contents []core.Content) int32 {
	if len(contents) == 0 {
		return 0
	}
	b, err := json.Marshal(contents)
	if err != nil {
		return 0
	}
	return int32(math.Ceil(float64(len(b)) / charsPerToken))
}
