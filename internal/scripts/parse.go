package scripts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// shellLangs are the fence languages treated as runnable shell scripts.
// Fenced blocks in any other language are left alone.
var shellLangs = map[string]bool{
	"bash":  true,
	"sh":    true,
	"shell": true,
	"zsh":   true,
}

// blockMeta is the optional JSON annotation after a fence language tag:
//
//	```bash {"id": "deploy", "title": "Deploy to staging"}
type blockMeta struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// extractScripts pulls shell code blocks out of one markdown document.
// source names the document (used for fallback ids); line numbers are
// 1-based and refer to the fence lines.
func extractScripts(source, content string) []Script {
	var out []Script

	lines := strings.Split(content, "\n")
	inBlock := false
	var meta blockMeta
	var lang string
	var code []string
	start := 0

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		if !inBlock {
			if !strings.HasPrefix(line, "```") {
				continue
			}
			tag := strings.TrimSpace(strings.TrimPrefix(line, "```"))
			l, m := parseFenceTag(tag)
			if !shellLangs[l] {
				continue
			}
			inBlock = true
			lang = l
			meta = m
			code = code[:0]
			start = i + 1
			continue
		}

		if line == "```" {
			inBlock = false
			text := strings.TrimSpace(strings.Join(code, "\n"))
			if text == "" {
				continue
			}
			s := Script{
				ID:        meta.ID,
				Title:     meta.Title,
				Language:  lang,
				Source:    source,
				Code:      text,
				LineStart: start,
				LineEnd:   i + 1,
			}
			if s.ID == "" {
				s.ID = fmt.Sprintf("%s:%d", source, start)
			}
			out = append(out, s)
			continue
		}

		code = append(code, raw)
	}

	return out
}

// parseFenceTag splits a fence info string into language and optional JSON
// metadata. Malformed metadata is ignored rather than failing the document.
func parseFenceTag(tag string) (string, blockMeta) {
	var meta blockMeta

	lang := tag
	if i := strings.IndexAny(tag, " \t{"); i >= 0 {
		lang = tag[:i]
		rest := strings.TrimSpace(tag[i:])
		if strings.HasPrefix(rest, "{") {
			_ = json.Unmarshal([]byte(rest), &meta)
		}
	}
	return strings.ToLower(lang), meta
}
