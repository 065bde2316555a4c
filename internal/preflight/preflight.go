// Package preflight answers "can a run even start" without launching a
// browser: is a Chrome binary resolvable, does the login page respond.
// The doctor command surfaces these checks to the operator.
package preflight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

// probeTimeout bounds the login page fetch. Slow portals are a finding,
// not a hang.
const probeTimeout = 15 * time.Second

// FindBrowser resolves the Chrome executable to launch. An explicitly
// configured path must exist; otherwise $PATH and the usual install
// locations are searched.
func FindBrowser(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configured browser %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, name := range candidateNames() {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, p := range candidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no chrome or chromium executable found, set browser.exec_path")
}

func candidateNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"chrome.exe", "msedge.exe"}
	case "darwin":
		return []string{"google-chrome", "chromium"}
	default:
		return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "microsoft-edge"}
	}
}

func candidatePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{"/usr/bin/google-chrome", "/usr/bin/chromium", "/snap/bin/chromium"}
	}
}

// ProbeResult is what the login page answered during preflight.
type ProbeResult struct {
	StatusCode int
	Title      string
	FinalURL   string
}

// ProbeLoginURL fetches the login page over plain HTTP and pulls its
// <title>. It cannot prove the login flow works, but it cheaply catches
// dead URLs, DNS typos and blocked networks.
func ProbeLoginURL(ctx context.Context, loginURL, userAgent string) (*ProbeResult, error) {
	client := resty.New().
		SetTimeout(probeTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}

	resp, err := client.R().SetContext(ctx).Get(loginURL)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", loginURL, err)
	}

	out := &ProbeResult{StatusCode: resp.StatusCode(), FinalURL: loginURL}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		out.FinalURL = raw.Request.URL.String()
	}
	if doc, err := htmlquery.Parse(bytes.NewReader(resp.Body())); err == nil {
		out.Title = pageTitle(doc)
	}
	return out, nil
}

// pageTitle pulls the trimmed <title> text, empty when the document has
// none.
func pageTitle(doc *html.Node) string {
	node := htmlquery.FindOne(doc, "//title")
	if node == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(node))
}
