package docker

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber checks one HTTP endpoint. A nil error with ok=false means the
// endpoint answered with a server error.
type HTTPProber interface {
	Probe(ctx context.Context, url string) (ok bool, err error)
}

type defaultProber struct{}

func (defaultProber) Probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode < 500, nil
}

// Healthcheck verifies the started containers in two phases sharing one
// deadline measured from the call: first all containers must report
// "running" (any "exited" fails immediately; deadline overrun is a timeout
// failure), then every HTTP port must answer without a server error.
func (c *Client) Healthcheck(ctx context.Context, containerIDs []string, httpPorts []int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	hcCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := c.waitRunning(hcCtx, containerIDs, deadline); err != nil {
		return err
	}
	if len(httpPorts) == 0 {
		return nil
	}
	return c.waitHTTP(hcCtx, httpPorts, deadline)
}

func (c *Client) waitRunning(ctx context.Context, containerIDs []string, deadline time.Time) error {
	pending := append([]string(nil), containerIDs...)
	for {
		var still []string
		for _, id := range pending {
			status, err := c.inspectStatus(ctx, id)
			if err != nil {
				return fmt.Errorf("inspect container %s: %w", shortID(id), err)
			}
			switch status {
			case "running":
				// healthy, drop from pending
			case "exited", "dead":
				return fmt.Errorf("container %s exited before becoming healthy", shortID(id))
			default:
				still = append(still, id)
			}
		}
		if len(still) == 0 {
			return nil
		}
		pending = still

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %d container(s) to reach running state", len(pending))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for containers: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) waitHTTP(ctx context.Context, ports []int, deadline time.Time) error {
	pending := append([]int(nil), ports...)
	for {
		var still []int
		for _, port := range pending {
			ok, err := c.probe.Probe(ctx, fmt.Sprintf("http://localhost:%d/", port))
			if err != nil || !ok {
				still = append(still, port)
			}
		}
		if len(still) == 0 {
			return nil
		}
		pending = still

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for HTTP endpoint(s) on ports %v", pending)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for HTTP endpoints: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
