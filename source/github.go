package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"github.com/picostack/gitadapter/config"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

const acceptHeader = "application/vnd.github.v3+json"

var _ Source = &GitHub{}

// GitHub implements a Source backed by the GitHub contents API. The file's
// metadata is requested with the credential, then the raw file is downloaded
// from the returned download_url without it.
type GitHub struct {
	BaseURL    string
	Owner      string
	Repository string
	FileName   string
	Token      string
	Client     *http.Client
}

type contentsResponse struct {
	DownloadURL string `json:"download_url"`
}

type userResponse struct {
	Login string `json:"login"`
}

// ContentsURL returns the metadata URL for the configured file.
func (g *GitHub) ContentsURL() string {
	return strings.Join([]string{
		g.baseURL(),
		"repos",
		url.PathEscape(g.Owner),
		url.PathEscape(g.Repository),
		"contents",
		escapeFilePath(g.FileName),
	}, "/")
}

// Fetch implements Source
func (g *GitHub) Fetch(ctx context.Context) (config.Config, error) {
	raw, err := get(ctx, g.client(), g.ContentsURL(), g.authHeader())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file metadata")
	}
	var meta contentsResponse
	if err = json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode file metadata")
	}
	if meta.DownloadURL == "" {
		return nil, errors.Errorf("no download_url for %s, is it a file?", g.FileName)
	}

	raw, err = get(ctx, g.client(), meta.DownloadURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download file")
	}
	return config.Parse(raw)
}

// User returns the login of the account the credential authenticates as.
func (g *GitHub) User(ctx context.Context) (string, error) {
	raw, err := get(ctx, g.client(), g.baseURL()+"/user", g.authHeader())
	if err != nil {
		return "", errors.Wrap(err, "failed to get authenticated user")
	}
	var u userResponse
	if err = json.Unmarshal(raw, &u); err != nil {
		return "", errors.Wrap(err, "failed to decode authenticated user")
	}
	return u.Login, nil
}

// Name implements Source
func (g *GitHub) Name() string {
	return "github"
}

func (g *GitHub) authHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", acceptHeader)
	h.Set("Authorization", "Bearer "+g.Token)
	return h
}

func (g *GitHub) baseURL() string {
	if g.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(g.BaseURL, "/")
}

func (g *GitHub) client() *http.Client {
	if g.Client == nil {
		return cleanhttp.DefaultClient()
	}
	return g.Client
}

func escapeFilePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
