package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/getpactd/pactd/pkg/pact"
)

// stateClient drives the provider-state callback protocol.
type stateClient struct {
	url      string
	asQuery  bool
	teardown bool
	retries  int
	client   *http.Client
	log      *slog.Logger
}

// call invokes the state-change endpoint for one provider state.
// Transport errors are retried with exponential backoff; a non-2xx
// status is immediately fatal. A JSON object response body is returned
// for merging into the generator context.
func (c *stateClient) call(ctx context.Context, state pact.ProviderState, action string) (map[string]any, error) {
	if c.url == "" {
		return nil, nil
	}

	operation := func() (map[string]any, error) {
		req, err := c.buildRequest(ctx, state, action)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		res, err := c.client.Do(req)
		if err != nil {
			c.log.Debug("state change call failed, will retry", "state", state.Name, "error", err)
			return nil, err
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, backoff.Permanent(fmt.Errorf("state change for %q returned status %d", state.Name, res.StatusCode))
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to read state change response: %w", err))
		}

		var values map[string]any
		if len(body) > 0 {
			// Only a JSON object body feeds the generator context;
			// anything else is ignored.
			_ = json.Unmarshal(body, &values)
		}
		return values, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(100*time.Millisecond),
		), uint64(c.retries)),
		ctx,
	)
	return backoff.RetryWithData(operation, policy)
}

func (c *stateClient) buildRequest(ctx context.Context, state pact.ProviderState, action string) (*http.Request, error) {
	if c.asQuery {
		u, err := url.Parse(c.url)
		if err != nil {
			return nil, fmt.Errorf("invalid state change URL: %w", err)
		}
		q := u.Query()
		q.Set("state", state.Name)
		q.Set("action", action)
		for key, value := range state.Params {
			q.Set(key, fmt.Sprintf("%v", value))
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	}

	payload := map[string]any{
		"state":  state.Name,
		"params": state.Params,
		"action": action,
	}
	if payload["params"] == nil {
		payload["params"] = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// setup stages every provider state in order, merging any returned
// values into one generator context.
func (c *stateClient) setup(ctx context.Context, states []pact.ProviderState) (map[string]any, error) {
	merged := map[string]any{}
	for _, state := range states {
		for key, value := range state.Params {
			merged[key] = value
		}
		values, err := c.call(ctx, state, "setup")
		if err != nil {
			return nil, err
		}
		for key, value := range values {
			merged[key] = value
		}
	}
	return merged, nil
}

// tearDown reverses setup order. Teardown failures are logged, not
// fatal.
func (c *stateClient) tearDown(ctx context.Context, states []pact.ProviderState) {
	if !c.teardown {
		return
	}
	for i := len(states) - 1; i >= 0; i-- {
		if _, err := c.call(ctx, states[i], "teardown"); err != nil {
			c.log.Warn("state teardown failed", "state", states[i].Name, "error", err)
		}
	}
}
