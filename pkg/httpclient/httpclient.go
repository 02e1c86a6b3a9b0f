package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
	"vereinsportal/pkg/config"
)

const maxRedirects = 3

var errTooManyRedirects = errors.New("httpclient: too many redirects")

type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client — исходящий HTTP к внешним API (геокодер). Каждый запрос ограничен ctx вызывающего.
type Client struct {
	http      *http.Client
	transport *http.Transport
	userAgent string
}

func NewClient(cfg config.HTTPClient) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = 5 * time.Second
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		DisableKeepAlives:     !cfg.KeepAlives,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ClientTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		transport: transport,
		userAgent: cfg.UserAgent,
	}
}

// Do ставит User-Agent, если вызывающий его не задал: Nominatim без него отвечает 403.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.WithContext(ctx)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// CloseIdle закрывает keep-alive соединения при остановке сервиса
func (c *Client) CloseIdle() {
	c.transport.CloseIdleConnections()
}
