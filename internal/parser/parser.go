// Package parser reads note drafts from Markdown files with YAML frontmatter.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/notehub/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Tag         string
}

// Parse extracts frontmatter, body, title and tag from raw Markdown bytes.
// Invalid frontmatter is treated as part of the body.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		fm, body = nil, string(data)
	}
	return build(fm, body), nil
}

// ParseDraft reads a draft file into a FormDraft. Unlike Parse it rejects
// malformed frontmatter, since the file is meant to be submitted as is.
//
// The title comes from the "title" key or, failing that, the first H1, which
// is then dropped from the content. The tag comes from the "tag" key, the
// first entry of "tags", or the first inline #Tag naming a known tag.
// Missing values are left empty for validation to report.
func ParseDraft(data []byte) (models.FormDraft, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return models.FormDraft{}, err
	}
	r := build(fm, body)
	return models.FormDraft{
		Title:   r.Title,
		Content: strings.TrimSpace(r.Body),
		Tag:     models.Tag(r.Tag),
	}, nil
}

func build(fm map[string]interface{}, body string) *Result {
	title, body := deriveTitle(fm, body)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       title,
		Tag:         deriveTag(fm, body),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	// Find end delimiter.
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter; treat everything as body.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	// Body starts after closing delimiter line.
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return fm, body, nil
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading with that heading removed from body.
func deriveTitle(fm map[string]interface{}, body string) (string, string) {
	if s := stringValue(fm, "title"); s != "" {
		return s, body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			rest := append(lines[:i:i], lines[i+1:]...)
			return strings.TrimSpace(trimmed[2:]), strings.TrimLeft(strings.Join(rest, "\n"), "\n\r")
		}
	}
	return "", body
}

func deriveTag(fm map[string]interface{}, body string) string {
	if s := stringValue(fm, "tag"); s != "" {
		return canonicalTag(s)
	}
	if fm != nil {
		if list, ok := fm["tags"].([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					return canonicalTag(strings.TrimSpace(s))
				}
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		if t := canonicalTag(m[1]); models.Tag(t).Valid() {
			return t
		}
	}
	return ""
}

// canonicalTag maps s onto the spelling of a known tag, ignoring case.
// Unknown values are returned unchanged.
func canonicalTag(s string) string {
	for _, t := range models.Tags {
		if strings.EqualFold(s, string(t)) {
			return string(t)
		}
	}
	return s
}

func stringValue(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
