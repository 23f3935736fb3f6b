package util

import "strings"

// RepairJSON strips markdown code fences and surrounding prose from a model
// reply, keeping the span from the first '{' or '[' to the last '}' or ']'.
// The bool reports whether s was changed.
func RepairJSON(s string) (string, bool) {
	out := stripFence(strings.TrimSpace(s))

	start := strings.IndexAny(out, "{[")
	if start < 0 {
		return out, out != s
	}
	end := strings.LastIndexAny(out, "}]")
	if end < start {
		return out, out != s
	}
	out = out[start : end+1]
	return out, out != s
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSpace(s[3 : len(s)-3])
	if lang, rest, ok := strings.Cut(body, "\n"); ok && !strings.ContainsAny(lang, "{[") {
		body = rest
	} else if strings.HasPrefix(strings.ToLower(body), "json") {
		body = body[4:]
	}
	return strings.TrimSpace(body)
}
