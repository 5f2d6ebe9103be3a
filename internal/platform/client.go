package platform

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/domain"
)

const maxResponseBody = 1 << 20

// NewClient returns a single-attempt client: forwarding is at most once per
// call, callers retry by re-sending the same EventID.
func NewClient(timeout time.Duration, logger zerolog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient.Timeout = timeout
	c.Logger = leveledLogger{logger: logger.With().Str("component", "capi-http").Logger()}
	return c
}

type Request struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Post sends body as JSON. Network failures come back as *domain.TransportError;
// any response, whatever its status, is returned to the caller to judge.
func Post(ctx context.Context, client *retryablehttp.Client, p domain.Platform, r Request) (int, []byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return 0, nil, &domain.TransportError{Platform: p, Err: errors.Wrap(err, "build request")}
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &domain.TransportError{Platform: p, Err: errors.Wrap(redact(err), "send")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, &domain.TransportError{Platform: p, Err: errors.Wrap(err, "read response")}
	}
	return resp.StatusCode, body, nil
}

// redact strips query strings (access tokens) from url errors.
func redact(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	if u, perr := url.Parse(uerr.URL); perr == nil {
		u.RawQuery = ""
		return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
	}
	return uerr.Err
}

type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	l.logger.Error().Fields(safeFields(kv)).Msg(msg)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	l.logger.Debug().Fields(safeFields(kv)).Msg(msg)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	l.logger.Trace().Fields(safeFields(kv)).Msg(msg)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	l.logger.Warn().Fields(safeFields(kv)).Msg(msg)
}

// safeFields drops request urls, they carry access tokens in the query.
func safeFields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "url" {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			out[key] = redact(err).Error()
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

// Snippet is a bounded, single-line excerpt of a platform response body.
func Snippet(body []byte) string {
	const limit = 512
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
