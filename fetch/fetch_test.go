package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return New(zap.NewNop().Sugar(), opts)
}

func TestFetchOK(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("<html>страница с объявлениями</html>"))
	}))
	defer srv.Close()

	body, err := testFetcher(t, Options{}).Fetch(context.Background(), srv.URL, "cian", 1, Policy{})
	require.NoError(t, err)
	assert.Contains(t, string(body), "объявлениями")
	assert.Contains(t, gotUA, "Chrome")
	assert.Contains(t, gotLang, "ru")
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>ok now</html>"))
	}))
	defer srv.Close()

	body, err := testFetcher(t, Options{}).Fetch(context.Background(), srv.URL, "cian", 1, Policy{})
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok now")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testFetcher(t, Options{}).Fetch(context.Background(), srv.URL, "cian", 1, Policy{})
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusForbidden, fe.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchDetectsBlockPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>Подтвердите, что вы не робот</html>"))
	}))
	defer srv.Close()

	pol := Policy{Markers: []string{"вы не робот"}}
	_, err := testFetcher(t, Options{MaxAttempts: 2}).Fetch(context.Background(), srv.URL, "cian", 1, pol)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindBlocked, fe.Kind)
}

func TestFetchDetectsShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	pol := Policy{MinBodyLen: 1000}
	_, err := testFetcher(t, Options{MaxAttempts: 2}).Fetch(context.Background(), srv.URL, "cian", 1, pol)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindShort, fe.Kind)
}

func TestFetchSoftBlockParsesAnyway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("подозрительная активность"))
	}))
	defer srv.Close()

	pol := Policy{Markers: []string{"подозрительная активность"}, MinBodyLen: 1000, SoftBlock: true}
	body, err := testFetcher(t, Options{}).Fetch(context.Background(), srv.URL, "avito", 1, pol)
	require.NoError(t, err, "soft mode downgrades heuristics to warnings")
	assert.NotEmpty(t, body)
}

func TestFetchSoftBlockStillFailsOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pol := Policy{SoftBlock: true}
	_, err := testFetcher(t, Options{MaxAttempts: 2}).Fetch(context.Background(), srv.URL, "avito", 1, pol)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindHTTPStatus, fe.Kind)
}

func TestFetchTransportErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	start := time.Now()
	_, err := testFetcher(t, Options{BaseDelay: time.Second}).Fetch(context.Background(), srv.URL, "cian", 1, Policy{})
	require.Error(t, err)
	var fe *Error
	assert.False(t, errors.As(err, &fe), "transport failures are not part of the retry taxonomy")
	assert.Less(t, time.Since(start), time.Second, "transport errors must fail fast, no backoff")
}

func TestFetchDumpsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>dumped</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := testFetcher(t, Options{DumpDir: dir}).Fetch(context.Background(), srv.URL, "cian", 2, Policy{})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "cian_p2.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>dumped</html>", string(b))
}
