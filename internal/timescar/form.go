package timescar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// formFields collects the values a browser would send for form as loaded,
// before any user input.
func formFields(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
			values.Add(name, input.AttrOr("value", "on"))
		default:
			values.Add(name, input.AttrOr("value", ""))
		}
	})

	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if opt.Length() == 0 {
			return
		}
		values.Set(name, optionValue(opt))
	})

	form.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		name, _ := ta.Attr("name")
		values.Add(name, ta.Text())
	})

	return values
}

// fieldName is the key a control submits under. Controls without a name
// attribute fall back to their id.
func fieldName(control *goquery.Selection) string {
	if name, ok := control.Attr("name"); ok && name != "" {
		return name
	}
	return control.AttrOr("id", "")
}

func optionValue(opt *goquery.Selection) string {
	if v, ok := opt.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(opt.Text())
}

// findOption returns the option of sel whose value is value.
func findOption(sel *goquery.Selection, value string) *goquery.Selection {
	return sel.Find("option").FilterFunction(func(_ int, opt *goquery.Selection) bool {
		return optionValue(opt) == value
	}).First()
}

// formRequest builds the request a browser sends when form is submitted
// from pageURL with values. A named submit button adds its own pair.
func formRequest(ctx context.Context, form *goquery.Selection, pageURL *url.URL, values url.Values, button *goquery.Selection) (*http.Request, error) {
	if button != nil && button.Length() > 0 {
		if name, ok := button.Attr("name"); ok && name != "" {
			values.Set(name, button.AttrOr("value", ""))
		}
	}

	action, err := pageURL.Parse(form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("resolve form action: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))
	if method != http.MethodPost {
		action.RawQuery = values.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, action.String(), http.NoBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
