package download

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/genofetch/internal/api"
	"github.com/dmitrijs2005/genofetch/internal/common"
	"github.com/dmitrijs2005/genofetch/internal/filex"
	"github.com/dmitrijs2005/genofetch/internal/logging"
	"github.com/dmitrijs2005/genofetch/internal/retry"
)

func TestPlanParts(t *testing.T) {
	for _, tc := range []struct {
		total, part int64
		lens        []int64
	}{
		{0, 100, nil},
		{1, 100, []int64{1}},
		{100, 100, []int64{100}},
		{101, 100, []int64{100, 1}},
		{250, 100, []int64{100, 100, 50}},
	} {
		parts, err := PlanParts(tc.total, tc.part)
		require.NoError(t, err)
		require.Len(t, parts, len(tc.lens))

		var next int64
		for i, p := range parts {
			require.Equal(t, i, p.Index)
			require.Equal(t, next, p.Start, "ranges must be contiguous")
			require.Equal(t, tc.lens[i], p.Len())
			next = p.End
		}
		require.Equal(t, tc.total, next, "ranges must cover every byte")
	}

	_, err := PlanParts(100, 0)
	require.Error(t, err)
	_, err = PlanParts(-1, 100)
	require.Error(t, err)
}

func TestPartRangeHeader(t *testing.T) {
	p := PartRange{Start: 0, End: 100}
	require.Equal(t, "bytes=0-99", p.RangeHeader())
}

type fakeAPI struct {
	objectInfo func(fileID string) (*api.URLResponse, *api.RetryResponse, error)
	envelope   []byte
}

func (f *fakeAPI) ObjectInfo(ctx context.Context, dcsURL, fileID, token string) (*api.URLResponse, *api.RetryResponse, error) {
	return f.objectInfo(fileID)
}

func (f *fakeAPI) Envelope(ctx context.Context, dcsURL, fileID, token string) ([]byte, error) {
	return f.envelope, nil
}

func (f *fakeAPI) ResolveAccessURL(ctx context.Context, raw string) (string, error) {
	return raw, nil
}

func (f *fakeAPI) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req.Clone(ctx))
}

type fakeTokens struct{}

func (fakeTokens) WorkOrderToken(ctx context.Context, fileID string) (string, error) {
	return "wot", nil
}

func testDownloader(policy retry.Policy) *Downloader {
	d := &Downloader{
		accessor: fakeTokens{},
		dcsURL:   "https://dcs.example",
		policy:   policy,
		maxWait:  time.Minute,
		partSize: 100,
		workers:  3,
		progress: false,
		log:      logging.NewDiscard(),
	}
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestAwaitReady_HonorsRetryHintThenSucceeds(t *testing.T) {
	staged := &api.URLResponse{DownloadURL: "https://x", FileSize: 10}
	attempts := 0
	var delays []time.Duration

	d := testDownloader(retry.Policy{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	d.api = &fakeAPI{objectInfo: func(string) (*api.URLResponse, *api.RetryResponse, error) {
		attempts++
		if attempts <= 2 {
			return nil, &api.RetryResponse{RetryAfter: 3 * time.Second}, nil
		}
		return staged, nil, nil
	}}
	d.sleep = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	got, err := d.AwaitReady(context.Background(), "file-1")
	require.NoError(t, err)
	require.Equal(t, staged, got)
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, delays)
}

func TestAwaitReady_WaitBudgetExhausted(t *testing.T) {
	d := testDownloader(retry.Policy{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	d.maxWait = 5 * time.Second
	d.api = &fakeAPI{objectInfo: func(string) (*api.URLResponse, *api.RetryResponse, error) {
		return nil, &api.RetryResponse{RetryAfter: 2 * time.Second}, nil
	}}
	var waited time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		waited += delay
		return nil
	}

	_, err := d.AwaitReady(context.Background(), "file-1")
	require.ErrorIs(t, err, common.ErrStagingTimeout)
	require.LessOrEqual(t, waited, d.maxWait)
}

func TestAwaitReady_TerminalFailurePropagates(t *testing.T) {
	d := testDownloader(retry.Policy{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	d.api = &fakeAPI{objectInfo: func(string) (*api.URLResponse, *api.RetryResponse, error) {
		return nil, nil, fmt.Errorf("%w: nope", common.ErrUnauthorized)
	}}

	_, err := d.AwaitReady(context.Background(), "file-1")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

// rangeServer serves content honoring Range requests, with a Content-MD5
// per response and an optional per-part fault hook.
func rangeServer(t *testing.T, content []byte, fault func(start int64, w http.ResponseWriter) bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spec := strings.TrimPrefix(r.Header.Get("Range"), "bytes=")
		dash := strings.Index(spec, "-")
		require.Positive(t, dash)
		start, err := strconv.ParseInt(spec[:dash], 10, 64)
		require.NoError(t, err)
		end, err := strconv.ParseInt(spec[dash+1:], 10, 64)
		require.NoError(t, err)
		require.Less(t, end, int64(len(content)))

		if fault != nil && fault(start, w) {
			return
		}

		body := content[start : end+1]
		sum := md5.Sum(body)
		w.Header().Set("Content-Md5", base64.StdEncoding.EncodeToString(sum[:]))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body)
	}))
}

func testContent(size int) []byte {
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(int64(size)))
	rng.Read(data)
	return data
}

func newDownloaderFor(t *testing.T, srv *httptest.Server, envelope []byte, size int64) *Downloader {
	t.Helper()
	d := testDownloader(retry.Policy{
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Millisecond,
	})
	d.api = &fakeAPI{
		objectInfo: func(string) (*api.URLResponse, *api.RetryResponse, error) {
			return &api.URLResponse{DownloadURL: srv.URL, FileSize: size}, nil, nil
		},
		envelope: envelope,
	}
	return d
}

func TestDownloadFile_AssemblesEnvelopeAndParts(t *testing.T) {
	content := testContent(250)
	envelope := []byte("personalized-header")
	srv := rangeServer(t, content, nil)
	defer srv.Close()

	d := newDownloaderFor(t, srv, envelope, int64(len(content)))
	final := filepath.Join(t.TempDir(), "file-1.c4gh")

	require.NoError(t, d.DownloadFile(context.Background(), "file-1", final))

	got, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte(nil), envelope...), content...), got)
	require.NoFileExists(t, filex.PartPath(final))
}

func TestDownloadFile_EmptyObjectYieldsEnvelopeOnly(t *testing.T) {
	envelope := []byte("header-only")
	srv := rangeServer(t, nil, nil)
	defer srv.Close()

	d := newDownloaderFor(t, srv, envelope, 0)
	final := filepath.Join(t.TempDir(), "empty.c4gh")

	require.NoError(t, d.DownloadFile(context.Background(), "empty", final))

	got, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, envelope, got)
}

func TestDownloadFile_FailedPartAbortsAndCleansUp(t *testing.T) {
	content := testContent(250)
	srv := rangeServer(t, content, func(start int64, w http.ResponseWriter) bool {
		if start == 100 {
			w.WriteHeader(http.StatusTeapot)
			return true
		}
		return false
	})
	defer srv.Close()

	d := newDownloaderFor(t, srv, []byte("env"), int64(len(content)))
	final := filepath.Join(t.TempDir(), "file-1.c4gh")

	err := d.DownloadFile(context.Background(), "file-1", final)
	var perr *common.PartFailedError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, perr.Index)

	require.NoFileExists(t, final)
	require.NoFileExists(t, filex.PartPath(final))
}

func TestDownloadFile_ChecksumMismatchAborts(t *testing.T) {
	content := testContent(250)
	srv := rangeServer(t, content, func(start int64, w http.ResponseWriter) bool {
		if start == 200 {
			w.Header().Set("Content-Md5", base64.StdEncoding.EncodeToString(make([]byte, md5.Size)))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(content[200:250])
			return true
		}
		return false
	})
	defer srv.Close()

	d := newDownloaderFor(t, srv, []byte("env"), int64(len(content)))
	final := filepath.Join(t.TempDir(), "file-1.c4gh")

	err := d.DownloadFile(context.Background(), "file-1", final)
	var cerr *common.ChecksumMismatchError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, 2, cerr.Index)
	require.NoFileExists(t, filex.PartPath(final))
}
