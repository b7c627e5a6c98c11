package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

// URLResponse carries what is needed to start downloading a staged file.
type URLResponse struct {
	// DownloadURL is the access URL of the staged object. It may be an
	// s3:// URL that still needs presigning.
	DownloadURL string
	FileSize    int64
}

// RetryResponse signals that the file is still being staged and when to ask
// again.
type RetryResponse struct {
	RetryAfter time.Duration
}

type drsObject struct {
	Size          int64 `json:"size"`
	AccessMethods []struct {
		Type      string `json:"type"`
		AccessURL struct {
			URL string `json:"url"`
		} `json:"access_url"`
	} `json:"access_methods"`
}

// ObjectInfo asks the download service about a file. On success exactly one
// of the two returned values is non-nil: a URLResponse once the file is
// staged, or a RetryResponse while staging is still in progress.
func (c *Client) ObjectInfo(ctx context.Context, dcsURL, fileID, workOrderToken string) (*URLResponse, *RetryResponse, error) {
	req, err := c.objectRequest(ctx, dcsURL, fileID, "", workOrderToken)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.doCached(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch object %s: %w", fileID, err)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
		if err != nil || secs < 0 {
			return nil, nil, fmt.Errorf("staging response for %s carries no usable Retry-After", fileID)
		}
		return nil, &RetryResponse{RetryAfter: time.Duration(secs) * time.Second}, nil

	case http.StatusOK:
		var obj drsObject
		if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
			return nil, nil, fmt.Errorf("decode object %s: %w", fileID, err)
		}
		for _, m := range obj.AccessMethods {
			if m.Type == "s3" {
				return &URLResponse{DownloadURL: m.AccessURL.URL, FileSize: obj.Size}, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("%w: object %s has no s3 access method", common.ErrStagingFailed, fileID)

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, fmt.Errorf("%w: download denied for %s", common.ErrUnauthorized, fileID)

	case http.StatusNotFound:
		return nil, nil, fmt.Errorf("%w: file %s is unknown to the download service", common.ErrStagingFailed, fileID)

	default:
		return nil, nil, badStatus(resp)
	}
}

// Envelope fetches the Crypt4GH header personalized to the requester's key,
// returned by the service as base64.
func (c *Client) Envelope(ctx context.Context, dcsURL, fileID, workOrderToken string) ([]byte, error) {
	req, err := c.objectRequest(ctx, dcsURL, fileID, "/envelopes", workOrderToken)
	if err != nil {
		return nil, err
	}

	resp, err := c.doCached(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch envelope for %s: %w", fileID, err)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: envelope denied for %s", common.ErrUnauthorized, fileID)
	case http.StatusNotFound:
		return nil, fmt.Errorf("no envelope found for %s", fileID)
	default:
		return nil, badStatus(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read envelope for %s: %w", fileID, err)
	}
	body = bytes.Trim(bytes.TrimSpace(body), `"`)

	envelope, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode envelope for %s: %w", fileID, err)
	}
	return envelope, nil
}

func (c *Client) objectRequest(ctx context.Context, dcsURL, fileID, suffix, workOrderToken string) (*http.Request, error) {
	u := dcsURL + "/objects/" + fileID + suffix
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+workOrderToken)
	return req, nil
}
