// Package heading is a static text widget. Its markup is written in Markdown.
package heading

import (
	"errors"

	"tileboard/internal/widget"
)

const Name = "heading"

var errNoTitle = errors.New("heading: title option is required")

// Factory returns the heading widget definition.
func Factory() widget.Factory {
	return widget.Define(Name, func(opts widget.Options) (*widget.Module, error) {
		if s, _ := opts["title"].(string); s == "" {
			return nil, errNoTitle
		}
		return &widget.Module{
			Markup: widget.Paths{"markup.md"},
			CSS:    widget.Paths{"style.css"},
		}, nil
	})
}
