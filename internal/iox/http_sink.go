package iox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// HttpSink POSTs each batch's grouped results as JSON to a callout URL.
// Options: "url", "fields", "timeout_ms" (default 10s).
type HttpSink struct {
	url    string
	client *http.Client
	fields FieldProjection
}

func NewHttpSink(opts Options) (ResultSink, error) {
	raw_url, err := opts.Require("url")
	if err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(raw_url); err != nil {
		return nil, errors.Wrapf(err, "invalid sink url %s", raw_url)
	}

	timeout := 10 * time.Second
	if ms := opts.Get("timeout_ms"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid timeout_ms %q", ms)
		}
		timeout = time.Duration(n) * time.Millisecond
	}

	return &HttpSink{
		url:    raw_url,
		client: &http.Client{Timeout: timeout},
		fields: ParseProjection(opts.Get("fields")),
	}, nil
}

func (s *HttpSink) Write(ctx context.Context, results GroupedResults) error {
	body, err := json.Marshal(results)
	if err != nil {
		return errors.Wrap(err, "failed to encode results")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "callout to %s failed", s.url)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("callout to %s returned %s", s.url, res.Status)
	}
	return nil
}

func (s *HttpSink) Fields() FieldProjection { return s.fields }

func (s *HttpSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
