// Package dial is a gauge widget. Its value comes from a remote JSON field or
// HTML element, polled on a schedule, or stays fixed when no source is set.
package dial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tileboard/internal/widget"
)

const Name = "dial"

// Reading is the payload pushed on every poll.
type Reading struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	// Ratio is Value mapped onto [0,1] and clamped.
	Ratio float64 `json:"ratio"`
}

type config struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Value float64  `json:"value"`
	Unit  string   `json:"unit"`
	Label string   `json:"label"`

	// URL is polled when set. Field is a dotted path into a JSON body;
	// Selector is a CSS selector into an HTML body. Exactly one applies.
	URL      string `json:"url"`
	Field    string `json:"field"`
	Selector string `json:"selector"`
	Timeout  string `json:"timeout"`
}

var httpClient = &http.Client{}

// Factory returns the dial widget definition.
func Factory() widget.Factory { return widget.Define(Name, register) }

func register(opts widget.Options) (*widget.Module, error) {
	cfg, err := widget.DecodeOptions[config](opts)
	if err != nil {
		return nil, err
	}
	lo, hi := 0.0, 100.0
	if cfg.Min != nil {
		lo = *cfg.Min
	}
	if cfg.Max != nil {
		hi = *cfg.Max
	}
	if hi <= lo {
		return nil, fmt.Errorf("dial: max (%g) must be greater than min (%g)", hi, lo)
	}

	mod := &widget.Module{
		Markup:   widget.Paths{"markup.html"},
		ClientJS: widget.Paths{"client.js"},
		CSS:      widget.Paths{"style.css"},
		Update:   "update.js",
	}
	if cfg.URL == "" {
		return mod, nil
	}

	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	every, err := widget.ScheduleOption(opts, "every", 30*time.Second)
	if err != nil {
		return nil, err
	}
	mod.Job = &widget.Job{
		Schedule: every,
		Script: func(ctx context.Context, emit widget.EmitFunc) error {
			v, err := src.read(ctx)
			if err != nil {
				return err
			}
			emit(reading(v, lo, hi))
			return nil
		},
	}
	return mod, nil
}

func reading(v, lo, hi float64) Reading {
	r := (v - lo) / (hi - lo)
	return Reading{Value: v, Min: lo, Max: hi, Ratio: min(max(r, 0), 1)}
}

type source struct {
	url      string
	field    []string
	selector string
	timeout  time.Duration
}

func newSource(cfg config) (*source, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dial: invalid url %q", cfg.URL)
	}
	if (cfg.Field == "") == (cfg.Selector == "") {
		return nil, errors.New("dial: exactly one of field or selector must be set with url")
	}
	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		if timeout, err = time.ParseDuration(cfg.Timeout); err != nil || timeout <= 0 {
			return nil, fmt.Errorf("dial: invalid timeout %q", cfg.Timeout)
		}
	}
	s := &source{url: u.String(), selector: cfg.Selector, timeout: timeout}
	if cfg.Field != "" {
		s.field = strings.Split(cfg.Field, ".")
	}
	return s, nil
}

func (s *source) read(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "tileboard-dial/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("received status code %d", resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, 1<<20)

	if s.selector != "" {
		return selectNumber(body, s.selector)
	}
	return fieldNumber(body, s.field)
}

func selectNumber(r io.Reader, selector string) (float64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to parse HTML: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return 0, fmt.Errorf("selector %q returned no elements", selector)
	}
	return parseNumber(sel.Text())
}

func fieldNumber(r io.Reader, path []string) (float64, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("failed to parse JSON: %w", err)
	}
	for _, key := range path {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return 0, fmt.Errorf("field %q not found", strings.Join(path, "."))
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return 0, fmt.Errorf("field %q: bad index %q", strings.Join(path, "."), key)
			}
			v = node[i]
		default:
			return 0, fmt.Errorf("field %q not found", strings.Join(path, "."))
		}
	}
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case string:
		return parseNumber(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("field %q is not a number", strings.Join(path, "."))
	}
}

// parseNumber accepts text like " 42.5 ", "1,024" or "73%".
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}
