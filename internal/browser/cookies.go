package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// jarEntry is one persisted cookie. The on-disk format is private to this
// package; callers treat the jar file as opaque.
type jarEntry struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
}

// loadCookieJar reads the jar file and installs its cookies in the browser
// context. A missing file is not an error: first run.
func loadCookieJar(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cookie jar: %w", err)
	}
	var entries []jarEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode cookie jar: %w", err)
	}

	params := make([]*network.CookieParam, 0, len(entries))
	for _, e := range entries {
		p := &network.CookieParam{
			Name:     e.Name,
			Value:    e.Value,
			Domain:   e.Domain,
			Path:     e.Path,
			HTTPOnly: e.HTTPOnly,
			Secure:   e.Secure,
		}
		if e.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(e.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// saveCookieJar snapshots the context's cookies to the jar file.
func saveCookieJar(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}

	entries := make([]jarEntry, 0, len(cookies))
	for _, c := range cookies {
		entries = append(entries, jarEntry{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookie jar: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cookie jar dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	return nil
}
