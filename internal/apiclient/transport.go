package apiclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/sirupsen/logrus"
)

const (
	transportRetries    = 3
	transportRetryDelay = 200 * time.Millisecond
)

// newTransports builds the two go-httpretry clients behind a Client. Both
// share one TLS 1.2+ http.Client. The first re-sends idempotent requests
// that never got an answer; backend answers, 5xx and 429 included, are
// returned as they are. The second sends exactly once.
func newTransports(log *logrus.Logger) (*retry.Client, *retry.Client, error) {
	baseHTTPClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	logger := retryLogger{log: log}

	retrying, err := retry.NewClient(
		retry.WithHTTPClient(baseHTTPClient),
		retry.WithMaxRetries(transportRetries),
		retry.WithInitialRetryDelay(transportRetryDelay),
		retry.WithRetryableChecker(transportFailed),
		retry.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	once, err := retry.NewClient(
		retry.WithHTTPClient(baseHTTPClient),
		retry.WithMaxRetries(0),
		retry.WithRetryableChecker(neverRetry),
		retry.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return retrying, once, nil
}

// transportFailed retries only when no response arrived at all.
func transportFailed(err error, resp *http.Response) bool {
	return err != nil && resp == nil
}

func neverRetry(error, *http.Response) bool { return false }

// transport picks the Doer for req.
func (c *Client) transport(req *http.Request) Doer {
	if idempotent(req.Method) {
		return c.doer
	}
	return c.once
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retryLogger sends go-httpretry's key/value logs to logrus.
type retryLogger struct {
	log *logrus.Logger
}

func (l retryLogger) entry(args []any) *logrus.Entry {
	fields := make(logrus.Fields, len(args)/2+1)
	fields["component"] = "transport"
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return l.log.WithFields(fields)
}

func (l retryLogger) Debug(msg string, args ...any) { l.entry(args).Debug(msg) }
func (l retryLogger) Info(msg string, args ...any)  { l.entry(args).Info(msg) }
func (l retryLogger) Warn(msg string, args ...any)  { l.entry(args).Warn(msg) }
func (l retryLogger) Error(msg string, args ...any) { l.entry(args).Error(msg) }
