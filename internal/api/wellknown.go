package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// WellKnownValue fetches one named value from the well-known-value service,
// e.g. the base URLs of the download and work package services.
func (c *Client) WellKnownValue(ctx context.Context, baseURL, name string) (string, error) {
	u := strings.TrimSuffix(baseURL, "/") + "/values/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doCached(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fetch well-known value %q: %w", name, err)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("well-known value %q is not configured", name)
	default:
		return "", badStatus(resp)
	}

	var values map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return "", fmt.Errorf("decode well-known value %q: %w", name, err)
	}
	v, ok := values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("well-known response is missing %q", name)
	}
	return v, nil
}
