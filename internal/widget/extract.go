// Package widget turns a stored embed blob into the pieces the preview frame
// needs: the loader script, the instrumentation around it and the policy the
// browser runtime follows while it waits for the widget to mount.
package widget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformed means the blob has no <script> element with content or src.
var ErrMalformed = errors.New("widget: no script with content or src")

// Attr is one attribute copied from an external script tag.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Embed is the executable part of a pasted embed. Exactly one of Inline and
// Src is set. Markup holds the remaining non-script HTML, usually the
// widget's custom element.
type Embed struct {
	Inline string `json:"inline,omitempty"`
	Src    string `json:"src,omitempty"`
	Attrs  []Attr `json:"attrs,omitempty"`
	Markup string `json:"-"`
}

// External reports whether the widget loads from a URL.
func (e Embed) External() bool {
	return e.Src != ""
}

// loading attributes carried over to the injected external script.
var keptAttrs = map[string]bool{
	"async":          true,
	"defer":          true,
	"type":           true,
	"crossorigin":    true,
	"integrity":      true,
	"referrerpolicy": true,
	"nomodule":       true,
	"id":             true,
	"charset":        true,
}

// Extract parses blob as a detached fragment and returns the first script
// that has non-empty text or a src.
func Extract(blob string) (emb Embed, err error) {
	defer func() {
		if r := recover(); r != nil {
			emb, err = Embed{}, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	if strings.TrimSpace(blob) == "" {
		return Embed{}, ErrMalformed
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blob))
	if err != nil {
		return Embed{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			emb = Embed{Src: src, Attrs: scriptAttrs(s)}
			found = true
			return false
		}
		if text := s.Text(); strings.TrimSpace(text) != "" {
			emb = Embed{Inline: text}
			found = true
			return false
		}
		return true
	})
	if !found {
		return Embed{}, ErrMalformed
	}

	doc.Find("script").Remove()
	if markup, err := doc.Find("body").Html(); err == nil {
		emb.Markup = strings.TrimSpace(markup)
	}
	return emb, nil
}

func scriptAttrs(s *goquery.Selection) []Attr {
	node := s.Get(0)
	if node == nil {
		return nil
	}
	var out []Attr
	for _, a := range node.Attr {
		name := strings.ToLower(a.Key)
		if name == "src" {
			continue
		}
		if keptAttrs[name] || strings.HasPrefix(name, "data-") {
			out = append(out, Attr{Name: name, Value: a.Val})
		}
	}
	return out
}
