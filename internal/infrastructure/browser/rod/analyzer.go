package rod

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"bpm-agent/internal/domain/entity"
)

const maxElements = 200

// collectElements probes the page's form controls. Probes are independent:
// a failing selector query loses that node class, not the whole snapshot.
func (a *Adapter) collectElements(ctx context.Context) []entity.PageElement {
	page := a.page.Context(ctx)

	var result []entity.PageElement
	seen := make(map[string]bool)

	add := func(el entity.PageElement) {
		if len(result) >= maxElements || el.Selector == "" || seen[el.Selector] {
			return
		}
		seen[el.Selector] = true
		result = append(result, el)
	}

	probe := func(selector string, build func(*rod.Element) (entity.PageElement, bool)) {
		els, err := page.Elements(selector)
		if err != nil {
			a.log.Warn("element probe failed", "selector", selector, "error", err)
			return
		}
		for _, el := range els {
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
			built, ok := build(el)
			if !ok {
				continue
			}
			add(built)
		}
	}

	probe("input", func(el *rod.Element) (entity.PageElement, bool) {
		typ := attr(el, "type")
		var et entity.ElementType
		switch typ {
		case "hidden", "submit", "button", "image":
			return entity.PageElement{}, false
		case "checkbox":
			et = entity.ElementCheckbox
		case "radio":
			et = entity.ElementRadio
		case "file":
			et = entity.ElementFileUpload
		default:
			et = entity.ElementInput
		}
		return entity.PageElement{
			Type:        et,
			Selector:    elementSelector(el, "input"),
			Name:        elementName(el),
			Value:       propString(el, "value"),
			Required:    hasAttr(el, "required"),
			Placeholder: attr(el, "placeholder"),
		}, true
	})

	probe("select", func(el *rod.Element) (entity.PageElement, bool) {
		return entity.PageElement{
			Type:     entity.ElementSelect,
			Selector: elementSelector(el, "select"),
			Name:     elementName(el),
			Value:    propString(el, "value"),
			Required: hasAttr(el, "required"),
			Options:  selectOptions(el),
		}, true
	})

	probe("textarea", func(el *rod.Element) (entity.PageElement, bool) {
		return entity.PageElement{
			Type:        entity.ElementTextarea,
			Selector:    elementSelector(el, "textarea"),
			Name:        elementName(el),
			Value:       propString(el, "value"),
			Required:    hasAttr(el, "required"),
			Placeholder: attr(el, "placeholder"),
		}, true
	})

	probe("button, input[type='submit']", func(el *rod.Element) (entity.PageElement, bool) {
		text, _ := el.Text()
		name := strings.TrimSpace(text)
		if name == "" {
			name = attr(el, "value")
		}
		return entity.PageElement{
			Type:     entity.ElementButton,
			Selector: elementSelector(el, "button"),
			Name:     name,
		}, true
	})

	return result
}

// elementName prefers the machine name over display hints: name attribute,
// then id, then placeholder, then aria-label.
func elementName(el *rod.Element) string {
	for _, key := range []string{"name", "id", "placeholder", "aria-label"} {
		if v := attr(el, key); v != "" {
			return v
		}
	}
	return ""
}

// elementSelector builds a stable CSS selector when the element has an id
// or name, falling back to the element's xpath.
func elementSelector(el *rod.Element, tag string) string {
	if id := attr(el, "id"); id != "" {
		return "#" + id
	}
	if name := attr(el, "name"); name != "" {
		return fmt.Sprintf("%s[name='%s']", tag, name)
	}
	xp, err := el.ElementX("@")
	if err != nil {
		return ""
	}
	return xp.String()
}

func selectOptions(el *rod.Element) []string {
	opts, err := el.Elements("option")
	if err != nil {
		return nil
	}
	var out []string
	for _, opt := range opts {
		text, err := opt.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func attr(el *rod.Element, key string) string {
	v, err := el.Attribute(key)
	if err != nil || v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func hasAttr(el *rod.Element, key string) bool {
	v, err := el.Attribute(key)
	return err == nil && v != nil
}

func propString(el *rod.Element, key string) string {
	v, err := el.Property(key)
	if err != nil {
		return ""
	}
	return v.String()
}
