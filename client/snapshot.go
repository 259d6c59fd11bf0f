package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxSnapshotSize bounds a downloaded snapshot.
const maxSnapshotSize = 1 << 30

// Snapshot downloads the node's latest compressed state snapshot.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	url := c.baseURL + "/snapshot"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build GET %s:\n%w", url, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(http.MethodGet, url, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("read snapshot:\n%w", err)
	}

	return data, nil
}
