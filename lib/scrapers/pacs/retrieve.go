package pacs

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pacs-preloader/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const detailPath = "/servlet/ImageFrameList"

// Form fields of the detail-retrieval endpoint. The series UID is
// mandatory; omitting it returns an empty shell page.
const (
	fieldUser     = "webUserName"
	fieldSession  = "sessionHash"
	fieldHost     = "host"
	fieldAction   = "action"
	fieldStudy    = "studyUID"
	fieldSeries   = "seriesUID"
	fieldPageSize = "frameCount"
	fieldCursor   = "startIndex"

	actionImageFrames = "getImageFrames"
)

// URL shapes an embedded image reference can take.
var refMarkers = []string{"/wado", "/servlet/ImageServlet"}

// Hard cap on references accumulated per series; pathological responses
// that keep producing distinct references terminate here.
const maxSeriesRefs = 500

// Client talks to the vendor detail-retrieval endpoint using the
// session state probed from the hosting page.
type Client struct {
	http     *resty.Client
	base     *url.URL
	session  *Session
	pageSize int
}

type ClientOptions struct {
	BaseUrl string
	Session *Session
	// Page-size hint sent with every detail request. Defaults to 50.
	PageSize int
}

func NewClient(opts ClientOptions) (*Client, error) {
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("a probed session is required")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/pacs/http")

	return &Client{
		http:     client,
		base:     base,
		session:  opts.Session,
		pageSize: pageSize,
	}, nil
}

// Session exposes the client's session context.
func (c *Client) Session() *Session {
	return c.session
}

// RetrievedImageSet is the duplicate-free outcome of paginating one
// series' detail pages.
type RetrievedImageSet struct {
	// Image references in first-seen order.
	Refs []string
	// Acquisition date (YYYYMMDD) discovered on the first page, when the
	// response carried one.
	Date string
}

// RetrieveSeries pages through the detail endpoint for one study/series
// pair, accumulating every embedded image reference.
//
// The cursor starts at 1 and advances by the number of references each
// page yielded. The loop terminates when a page yields no new
// references, the accumulated set reaches the hard cap, or the page came
// back short of the requested size (no further pages exist). A transport
// failure on any page fails the whole series; retrying is the caller's
// decision.
func (c *Client) RetrieveSeries(ctx context.Context, studyUID, seriesUID string) (*RetrievedImageSet, error) {
	ctx, span := tracer.Start(ctx, "RetrieveSeries", trace.WithAttributes(
		attribute.String("series", seriesUID),
	))
	defer span.End()

	set := &RetrievedImageSet{}
	seen := map[string]bool{}
	cursor := 1

	for {
		body, err := c.fetchDetailPage(ctx, studyUID, seriesUID, cursor)
		if err != nil {
			span.SetStatus(codes.Error, "detail page fetch failed")
			return nil, fmt.Errorf("detail page at cursor %d: %w", cursor, err)
		}

		fragment, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			span.SetStatus(codes.Error, "detail page unparseable")
			return nil, fmt.Errorf("parse detail page: %w", err)
		}

		if cursor == 1 {
			c.session.learnRoutingHost(findRoutingHost(fragment, body))
			set.Date = findAcquisitionDate(fragment, body)
		}

		refs := extractImageRefs(fragment)
		added := 0
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			set.Refs = append(set.Refs, ref)
			added++
			if len(set.Refs) >= maxSeriesRefs {
				return set, nil
			}
		}

		if added == 0 || len(refs) < c.pageSize {
			return set, nil
		}
		cursor += len(refs)
	}
}

func (c *Client) fetchDetailPage(ctx context.Context, studyUID, seriesUID string, cursor int) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			fieldUser:     c.session.UserID,
			fieldSession:  c.session.Token,
			fieldHost:     c.session.RoutingHost(),
			fieldAction:   actionImageFrames,
			fieldStudy:    studyUID,
			fieldSeries:   seriesUID,
			fieldPageSize: strconv.Itoa(c.pageSize),
			fieldCursor:   strconv.Itoa(cursor),
		}).
		Post(detailPath)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("detail endpoint returned %s", res.Status())
	}
	return res.Body(), nil
}

func extractImageRefs(fragment *goquery.Document) []string {
	var refs []string
	appendRef := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		for _, marker := range refMarkers {
			if strings.Contains(addr, marker) {
				refs = append(refs, addr)
				return
			}
		}
	}

	fragment.Find("img").Each(func(_ int, img *goquery.Selection) {
		appendRef(img.AttrOr("src", ""))
	})
	fragment.Find("a").Each(func(_ int, a *goquery.Selection) {
		appendRef(a.AttrOr("href", ""))
	})
	return refs
}

var hostParam = regexp.MustCompile(`[?&]host=([A-Za-z0-9_.-]+)`)

// findRoutingHost digs the routing host out of a detail response: an
// explicit hidden input when present, otherwise the host parameter the
// response's own image references carry.
func findRoutingHost(fragment *goquery.Document, body []byte) string {
	if host := fragment.Find("input[name=" + fieldHost + "]").AttrOr("value", ""); host != "" {
		return host
	}
	if groups := hostParam.FindSubmatch(body); groups != nil {
		return string(groups[1])
	}
	return ""
}

var eightDigitDate = regexp.MustCompile(`\b(?:19|20)\d{6}\b`)

func findAcquisitionDate(fragment *goquery.Document, body []byte) string {
	if date := fragment.Find("input[name=studyDate]").AttrOr("value", ""); date != "" {
		return strings.ReplaceAll(date, "-", "")
	}
	return eightDigitDate.FindString(string(body))
}
