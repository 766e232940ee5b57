package aao

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the origin site hosting cases.
	DefaultBaseURL = "https://aaonline.fr"
	// DefaultEngineURL is the raw-file root of the player engine repository.
	DefaultEngineURL = "https://bitbucket.org/AceAttorneyOnline/aao-game-creation-engine/raw"
	// DefaultPlayerVersion is the engine revision used when none is pinned.
	DefaultPlayerVersion = "master"

	defaultUserAgent   = "caseport/dev"
	defaultHTTPTimeout = 45 * time.Second
)

// ErrNotFound reports a case or resource that does not exist on the origin.
var ErrNotFound = errors.New("aao: not found")

// Config describes the site client configuration.
type Config struct {
	BaseURL    string
	EngineURL  string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the origin site and the player engine repository.
type Client struct {
	baseURL   string
	engineURL string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// New creates a Client from the supplied configuration.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	engine := strings.TrimRight(strings.TrimSpace(cfg.EngineURL), "/")
	if engine == "" {
		engine = DefaultEngineURL
	}
	agent := strings.TrimSpace(cfg.UserAgent)
	if agent == "" {
		agent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:   base,
		engineURL: engine,
		userAgent: agent,
		http:      client,
		logger:    logger,
	}
}

// BaseURL returns the origin site root the client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

// EngineURL returns the raw-file root of the player engine repository.
func (c *Client) EngineURL() string { return c.engineURL }

// ResolveCase fetches and decodes the case with the given trial ID.
func (c *Client) ResolveCase(ctx context.Context, id int64) (*Case, error) {
	script, err := c.Text(ctx, fmt.Sprintf("%s/trial.js.php?trial_id=%d", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("fetch case %d: %w", id, err)
	}

	infoMatch := trialInfoPattern.FindStringSubmatch(script)
	if infoMatch == nil {
		return nil, fmt.Errorf("case %d: trial script changed format", id)
	}
	if infoMatch[1] == "" {
		return nil, fmt.Errorf("case %d: %w", id, ErrNotFound)
	}

	var info CaseInfo
	if err := decodeEscapedJSON(infoMatch[1], &info); err != nil {
		return nil, fmt.Errorf("case %d: trial information: %w", id, err)
	}
	var infoDoc map[string]any
	if err := decodeEscapedJSON(infoMatch[1], &infoDoc); err != nil {
		return nil, fmt.Errorf("case %d: trial information: %w", id, err)
	}

	var data map[string]any
	if err := extractEscapedJSON(trialDataPattern, script, &data); err != nil {
		return nil, fmt.Errorf("case %d: trial data: %w", id, err)
	}

	c.logger.Debug("case resolved",
		slog.Int64("case_id", id),
		slog.String("title", info.Title),
		slog.Bool("in_sequence", info.Sequence != nil))

	return &Case{Info: info, InfoDoc: infoDoc, Data: data}, nil
}

// SiteConfig fetches the origin's directory layout from its bridge script.
func (c *Client) SiteConfig(ctx context.Context) (*SitePaths, error) {
	script, err := c.Text(ctx, c.baseURL+"/bridge.js.php")
	if err != nil {
		return nil, fmt.Errorf("fetch site configuration: %w", err)
	}
	paths := new(SitePaths)
	if err := extractRawJSON(siteConfigPattern, script, paths); err != nil {
		return nil, fmt.Errorf("site configuration: %w", err)
	}
	return paths, nil
}

// ModuleScript fetches the source of one player engine module. The
// default_data and trial modules are PHP-rendered and live on the origin
// and engine root respectively; everything else is a plain engine script.
func (c *Client) ModuleScript(ctx context.Context, name, version string) (string, error) {
	var target string
	switch name {
	case "default_data":
		target = c.baseURL + "/default_data.js.php"
	case "trial":
		target = fmt.Sprintf("%s/%s/trial.js.php", c.engineURL, version)
	default:
		target = fmt.Sprintf("%s/%s/Javascript/%s.js", c.engineURL, version, name)
	}
	return c.Text(ctx, target)
}

// PlayerMarkup fetches the player page template for the given engine
// version.
func (c *Client) PlayerMarkup(ctx context.Context, version string) (string, error) {
	return c.Text(ctx, fmt.Sprintf("%s/%s/player.php", c.engineURL, version))
}

// CommonScript fetches the engine's shared script preamble.
func (c *Client) CommonScript(ctx context.Context, version string) (string, error) {
	return c.Text(ctx, fmt.Sprintf("%s/%s/Javascript/common.js", c.engineURL, version))
}

// Text fetches a URL and returns its body as text.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("get %s: status %d: %w", url, resp.StatusCode, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
