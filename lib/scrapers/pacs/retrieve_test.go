package pacs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, pageSize int) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{
		BaseUrl:  server.URL,
		Session:  &Session{UserID: "jdoe", Token: "deadbeef"},
		PageSize: pageSize,
	})
	require.NoError(t, err)
	return client, server
}

func refAnchor(ref string) string {
	return `<a href="` + ref + `">frame</a>`
}

func TestRetrieveSeriesEmptyFirstPageStops(t *testing.T) {
	ctx := context.Background()

	var requests atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `<html><body><div>No images available.</div></body></html>`)
	}), 50)

	set, err := client.RetrieveSeries(ctx, "1.2.840.555", "1.2.840.556")
	require.NoError(t, err)
	require.Empty(t, set.Refs)
	require.EqualValues(t, 1, requests.Load())
}

func TestRetrieveSeriesPaginatesAndDeduplicates(t *testing.T) {
	ctx := context.Background()

	pages := map[string][]string{
		"1": {"/wado?objectUID=a", "/wado?objectUID=b", "/wado?objectUID=c"},
		// last reference of the first page repeats, plus one new ref;
		// short page signals the end
		"4": {"/wado?objectUID=c", "/wado?objectUID=d"},
	}

	var requests atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, actionImageFrames, r.PostFormValue(fieldAction))
		require.Equal(t, "jdoe", r.PostFormValue(fieldUser))
		require.Equal(t, "1.2.840.556", r.PostFormValue(fieldSeries))

		var b strings.Builder
		for _, ref := range pages[r.PostFormValue(fieldCursor)] {
			b.WriteString(refAnchor(ref))
		}
		fmt.Fprintf(w, "<html><body>%s</body></html>", b.String())
	}), 3)

	set, err := client.RetrieveSeries(ctx, "1.2.840.555", "1.2.840.556")
	require.NoError(t, err)
	require.Equal(t, []string{
		"/wado?objectUID=a",
		"/wado?objectUID=b",
		"/wado?objectUID=c",
		"/wado?objectUID=d",
	}, set.Refs)
	require.EqualValues(t, 2, requests.Load())
}

func TestRetrieveSeriesStopsAtHardCap(t *testing.T) {
	ctx := context.Background()
	const pageSize = 100

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		cursor, err := strconv.Atoi(r.PostFormValue(fieldCursor))
		require.NoError(t, err)

		// an endless supply of distinct references
		var b strings.Builder
		for i := 0; i < pageSize; i++ {
			b.WriteString(refAnchor(fmt.Sprintf("/wado?objectUID=%d", cursor+i)))
		}
		fmt.Fprintf(w, "<html><body>%s</body></html>", b.String())
	}), pageSize)

	set, err := client.RetrieveSeries(ctx, "1.2.840.555", "1.2.840.556")
	require.NoError(t, err)
	require.Len(t, set.Refs, maxSeriesRefs)
}

func TestRetrieveSeriesLearnsRoutingHostAndDate(t *testing.T) {
	ctx := context.Background()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		// the routing host is blank on the first request, learned from
		// this response, and echoed back on any later request
		fmt.Fprint(w, `<html><body>
			<input type="hidden" name="studyDate" value="2026-01-26">
			`+refAnchor("/servlet/ImageServlet?imageUID=x&host=node7")+`
		</body></html>`)
	}), 50)

	require.Empty(t, client.Session().RoutingHost())

	set, err := client.RetrieveSeries(ctx, "1.2.840.555", "1.2.840.556")
	require.NoError(t, err)
	require.Equal(t, "20260126", set.Date)
	require.Equal(t, "node7", client.Session().RoutingHost())

	// the first learned value sticks
	client.Session().learnRoutingHost("node9")
	require.Equal(t, "node7", client.Session().RoutingHost())
}

func TestRetrieveSeriesTransportErrorIsHard(t *testing.T) {
	ctx := context.Background()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusForbidden)
	}), 50)

	_, err := client.RetrieveSeries(ctx, "1.2.840.555", "1.2.840.556")
	require.Error(t, err)
}

func TestStableImageKey(t *testing.T) {
	// identity parameters win over incidental ones
	require.Equal(t,
		StableImageKey("/wado?requestType=WADO&objectUID=1.2.3&host=node7"),
		StableImageKey("/wado?host=node8&objectUID=1.2.3&requestType=WADO"))

	// no identity parameters: the full canonical query decides
	require.NotEqual(t,
		StableImageKey("/servlet/ImageServlet?a=1&b=2"),
		StableImageKey("/servlet/ImageServlet?a=1&b=3"))
	require.Equal(t,
		StableImageKey("/servlet/ImageServlet?a=1&b=2"),
		StableImageKey("/servlet/ImageServlet?b=2&a=1"))

	// no query at all: the reference is its own key
	require.Equal(t, "/images/frame1.jpg", StableImageKey("/images/frame1.jpg"))
}
