package pacs

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"pacs-preloader/lib/taskpool"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Concurrency limits for network-bound preload work. DOM interaction is
// never parallelized; these only govern detail pagination and binary
// downloads, which share no UI state.
const (
	seriesConcurrency   = 3
	downloadConcurrency = 4
)

// Payloads smaller than this are vendor error shells, not images.
const minImageBytes = 1024

// ImageUpload is one retrieved image plus the study context the storage
// collaborator files it under.
type ImageUpload struct {
	Payload          []byte
	Key              string
	Ordinal          int
	PatientName      string
	PatientDOB       string
	StudyUID         string
	StudyDescription string
	StudyDate        string
	ClinicDate       string
}

// ImageSink receives every successfully downloaded image. The local
// storage/viewer service implements it.
type ImageSink interface {
	SubmitImage(ctx context.Context, img ImageUpload) error
}

// PreloadRequest identifies one resolved study to fetch in full.
type PreloadRequest struct {
	StudyUID         string
	StudyDescription string
	StudyDate        string
	Series           []SeriesRecord
	PatientName      string
	PatientDOB       string
	ClinicDate       string
}

// PreloadResult reports how much of a study actually made it downstream.
type PreloadResult struct {
	Uploaded int
	// Series-level acquisition date when one was discovered, otherwise
	// the study-level fallback.
	Date string
}

// PreloadStudy resolves every series of a study through the detail
// endpoint, downloads each discovered image, and forwards it to the
// sink.
//
// A study with zero series, or a series yielding zero references,
// contributes zero images and is reported, not fatal. A failed series
// or download is skipped; only aggregate counts reflect it.
func (c *Client) PreloadStudy(ctx context.Context, sink ImageSink, req PreloadRequest) (PreloadResult, error) {
	ctx, span := tracer.Start(ctx, "PreloadStudy", trace.WithAttributes(
		attribute.String("study", req.StudyUID),
		attribute.Int("series_count", len(req.Series)),
	))
	defer span.End()

	result := PreloadResult{Date: req.StudyDate}
	if len(req.Series) == 0 {
		slog.InfoContext(ctx, "study has no series", "study", req.StudyUID)
		return result, nil
	}

	seriesTasks := make([]taskpool.Task[*RetrievedImageSet], len(req.Series))
	for i, series := range req.Series {
		seriesUID := series.UID
		seriesTasks[i] = func(ctx context.Context) (*RetrievedImageSet, error) {
			return c.RetrieveSeries(ctx, req.StudyUID, seriesUID)
		}
	}
	retrieved := taskpool.Run(ctx, seriesConcurrency, seriesTasks)

	var refs []string
	for i, r := range retrieved {
		if r.Err != nil {
			slog.WarnContext(ctx, "series retrieval failed",
				"series", req.Series[i].UID, "err", r.Err)
			continue
		}
		if r.Value.Date != "" && result.Date == req.StudyDate {
			result.Date = r.Value.Date
		}
		if len(r.Value.Refs) == 0 {
			slog.InfoContext(ctx, "series yielded no images", "series", req.Series[i].UID)
			continue
		}
		refs = append(refs, r.Value.Refs...)
	}

	downloadTasks := make([]taskpool.Task[int], len(refs))
	for i, ref := range refs {
		ordinal := i
		ref := ref
		downloadTasks[i] = func(ctx context.Context) (int, error) {
			if err := c.downloadAndForward(ctx, sink, req, ref, ordinal, result.Date); err != nil {
				return 0, err
			}
			return 1, nil
		}
	}
	downloads := taskpool.Run(ctx, downloadConcurrency, downloadTasks)

	for _, d := range downloads {
		if d.Err != nil {
			slog.WarnContext(ctx, "image download failed", "err", d.Err)
			continue
		}
		result.Uploaded += d.Value
	}

	slog.InfoContext(ctx, "study preloaded",
		"study", req.StudyUID,
		"uploaded", result.Uploaded,
		"of", len(refs),
	)
	return result, nil
}

func (c *Client) downloadAndForward(ctx context.Context, sink ImageSink, req PreloadRequest, ref string, ordinal int, date string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Get(ref)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("image fetch returned %s", res.Status())
	}
	payload := res.Body()
	if len(payload) < minImageBytes {
		return fmt.Errorf("payload of %d bytes is below the image sanity threshold", len(payload))
	}

	return sink.SubmitImage(ctx, ImageUpload{
		Payload:          payload,
		Key:              StableImageKey(ref),
		Ordinal:          ordinal,
		PatientName:      req.PatientName,
		PatientDOB:       req.PatientDOB,
		StudyUID:         req.StudyUID,
		StudyDescription: req.StudyDescription,
		StudyDate:        date,
		ClinicDate:       req.ClinicDate,
	})
}

// Query parameters that uniquely identify an image on their own.
var keyParams = []string{"objectUID", "imageUID", "frame"}

// StableImageKey derives a deterministic key for an image reference from
// its query parameters, so downstream storage can de-duplicate across
// preload runs even when the path portion varies by routing host.
func StableImageKey(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	query := parsed.Query()

	var parts []string
	for _, param := range keyParams {
		if v := query.Get(param); v != "" {
			parts = append(parts, param+"="+v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "&")
	}

	// No recognized identifier: canonicalize the whole query instead.
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}
	if len(parts) == 0 {
		return ref
	}
	return strings.Join(parts, "&")
}
