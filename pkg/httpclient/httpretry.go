package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"vereinsportal/internal/application/common"
	"vereinsportal/pkg/metrics"

	"go.uber.org/zap"
)

const (
	retryBase  = 200 * time.Millisecond
	retryLimit = 5 * time.Second
)

// RetryClient повторяет запрос к внешнему API при сетевых ошибках, 5xx и 429.
// Retry-After от upstream учитывается, но ожидание не дольше limit.
type RetryClient struct {
	delegate   HTTPClient
	upstream   string
	maxRetries int
	base       time.Duration
	limit      time.Duration
	logger     *zap.SugaredLogger
	m          *metrics.Metrics
}

// NewRetryClient: maxRetries — число повторов после первой попытки, m может быть nil.
func NewRetryClient(delegate HTTPClient, upstream string, maxRetries int, logger *zap.SugaredLogger, m *metrics.Metrics) *RetryClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryClient{
		delegate:   delegate,
		upstream:   upstream,
		maxRetries: maxRetries,
		base:       retryBase,
		limit:      retryLimit,
		logger:     logger,
		m:          m,
	}
}

func (c *RetryClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempts := c.maxRetries + 1
	// тело без GetBody второй раз не прочитать
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("%s: replay body: %w", c.upstream, err)
			}
			r.Body = body
		}

		start := time.Now()
		resp, err := c.delegate.Do(ctx, r)
		c.observe(start, resp, err)

		if attempt+1 >= attempts || !retryable(ctx, resp, err) {
			return resp, err
		}

		wait := c.wait(attempt, resp)
		c.logger.Warnf("[%s] attempt %d/%d failed (%s), retry in %s",
			c.upstream, attempt+1, attempts, describe(resp, err), wait)
		drain(resp)

		if err := common.SleepCtx(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s: retry canceled: %w", c.upstream, err)
		}
	}
}

func retryable(ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

func (c *RetryClient) wait(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if d, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			return min(d, c.limit)
		}
	}
	return common.NextBackoffWithJitter(attempt, c.base, c.limit)
}

// retryAfter понимает оба формата заголовка: секунды и HTTP-дату
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

func (c *RetryClient) observe(start time.Time, resp *http.Response, err error) {
	if c.m == nil {
		return
	}
	result := "error"
	if err == nil {
		result = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	c.m.Upstream.RequestsTotal.WithLabelValues(c.upstream, result).Inc()
	c.m.Upstream.AttemptDuration.WithLabelValues(c.upstream).Observe(time.Since(start).Seconds())
}

func describe(resp *http.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return resp.Status
}

// drain возвращает соединение в пул перед повтором
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
