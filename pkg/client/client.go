package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a remote Custodia server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Option func(*Client)

// WithAuthToken attaches a bearer token to every request; required for the
// admin surface.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// urlBuilder assembles request URLs from route templates, substituting
// {name} path params and appending query params.
type urlBuilder struct {
	base   string
	path   string
	params map[string]string
	query  url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{
		base:   c.baseURL,
		params: make(map[string]string),
		query:  make(url.Values),
	}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) setPathParam(name, value string) *urlBuilder {
	b.params[name] = value
	return b
}

func (b *urlBuilder) addQueryParam(name string, value any) *urlBuilder {
	b.query.Add(name, fmt.Sprintf("%v", value))
	return b
}

func (b *urlBuilder) build() string {
	path := b.path
	for name, value := range b.params {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	full := b.base + path
	if len(b.query) > 0 {
		full += "?" + b.query.Encode()
	}
	return full
}
