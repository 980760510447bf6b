package surgical

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

// EditType is the approach chosen for a targeted change
type EditType string

const (
	EditCSSSelector   EditType = "css-selector"
	EditSearchReplace EditType = "search-replace"
	EditWholeFile     EditType = "whole-file"
)

var (
	styleKeywords    = []string{"color", "background", "font", "size", "padding", "margin", "border", "width", "height", "style"}
	targetedKeywords = []string{"change", "replace", "update", "modify", "rename"}
)

// Edit is one change returned by the model. Which fields are used depends on Type.
type Edit struct {
	Type     EditType     `json:"type"`
	Selector string       `json:"selector,omitempty"`
	Property string       `json:"property,omitempty"`
	Value    string       `json:"value,omitempty"`
	File     history.File `json:"file,omitempty"`
	Search   string       `json:"search,omitempty"`
	Replace  string       `json:"replace,omitempty"`
	Content  string       `json:"content,omitempty"`
}

// Code is the three files an edit operates on
type Code struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// Get returns the content of file
func (c Code) Get(file history.File) string {
	switch file {
	case history.FileHTML:
		return c.HTML
	case history.FileCSS:
		return c.CSS
	case history.FileJS:
		return c.JS
	}
	return ""
}

func (c *Code) set(file history.File, content string) {
	switch file {
	case history.FileHTML:
		c.HTML = content
	case history.FileCSS:
		c.CSS = content
	case history.FileJS:
		c.JS = content
	}
}

// AnalyzeEditType picks the edit approach for a request. Style requests only
// become selector edits when an element is selected.
func AnalyzeEditType(description string, hasSelection bool) EditType {
	lower := strings.ToLower(description)
	if hasSelection && containsAny(lower, styleKeywords) {
		return EditCSSSelector
	}
	if containsAny(lower, targetedKeywords) {
		return EditSearchReplace
	}
	return EditWholeFile
}

// ApplyEdits returns code with edits applied in order. Edits that do not
// match anything are skipped and reported.
func ApplyEdits(code Code, edits []Edit) (Code, []string) {
	result := code
	var skipped []string

	for i, edit := range edits {
		switch edit.Type {
		case EditCSSSelector:
			if edit.Selector == "" || edit.Property == "" {
				skipped = append(skipped, fmt.Sprintf("edit %d: selector edit without selector or property", i))
				continue
			}
			updated, ok := applyCSSEdit(result.CSS, edit)
			if !ok {
				skipped = append(skipped, fmt.Sprintf("edit %d: selector %q not found in css", i, edit.Selector))
				continue
			}
			result.CSS = updated

		case EditSearchReplace:
			if !edit.File.Valid() {
				skipped = append(skipped, fmt.Sprintf("edit %d: unknown file %q", i, edit.File))
				continue
			}
			current := result.Get(edit.File)
			if edit.Search == "" || !strings.Contains(current, edit.Search) {
				skipped = append(skipped, fmt.Sprintf("edit %d: search text not found in %s", i, edit.File))
				continue
			}
			result.set(edit.File, strings.Replace(current, edit.Search, edit.Replace, 1))

		case EditWholeFile:
			if !edit.File.Valid() {
				skipped = append(skipped, fmt.Sprintf("edit %d: unknown file %q", i, edit.File))
				continue
			}
			result.set(edit.File, edit.Content)

		default:
			skipped = append(skipped, fmt.Sprintf("edit %d: unknown edit type %q", i, edit.Type))
		}
	}
	return result, skipped
}

// ChangedFiles lists the files that differ between before and after
func ChangedFiles(before, after Code) []history.File {
	var files []history.File
	for _, f := range []history.File{history.FileHTML, history.FileCSS, history.FileJS} {
		if before.Get(f) != after.Get(f) {
			files = append(files, f)
		}
	}
	return files
}

// applyCSSEdit replaces the property inside every rule for the selector, or
// inserts it at the top of the rule when absent.
func applyCSSEdit(css string, edit Edit) (string, bool) {
	selector := regexp.QuoteMeta(edit.Selector)
	property := regexp.QuoteMeta(edit.Property)
	declaration := edit.Property + ": " + edit.Value + ";"

	existing := regexp.MustCompile(`(` + selector + `\s*\{(?:[^}]*?[;\s])?)(` + property + `\s*:[^;}]+;?)`)
	if existing.MatchString(css) {
		return existing.ReplaceAllString(css, "${1}"+escapeReplacement(declaration)), true
	}

	opening := regexp.MustCompile(`(` + selector + `\s*\{)`)
	if !opening.MatchString(css) {
		return css, false
	}
	return opening.ReplaceAllString(css, "${1}\n  "+escapeReplacement(declaration)), true
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
