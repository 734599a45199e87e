package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// markdownRenderer renders assistant replies in the terminal. Falls back to
// the raw text when rendering fails, a reply is never swallowed.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer(plainText bool) (*markdownRenderer, error) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width - 4
		if termWidth > 120 {
			termWidth = 120
		}
	}

	var style glamour.TermRendererOption
	if plainText {
		style = glamour.WithStandardStyle("notty")
	} else {
		style = glamour.WithStandardStyle("dark")
	}

	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(termWidth),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &markdownRenderer{renderer: renderer}, nil
}

func (mr *markdownRenderer) render(content string) string {
	if content == "" {
		return ""
	}
	out, err := mr.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
