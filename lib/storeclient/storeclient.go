// Package storeclient talks to the local storage/viewer service that
// persists preloaded images and serves them to the reading device.
package storeclient

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"pacs-preloader/lib/scrapers/pacs"
	"pacs-preloader/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	http *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	// Defaults to 60s; image submissions carry whole binary payloads.
	Timeout time.Duration
}

func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 60
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "storeclient/http")

	return &Client{http: client}
}

// Health reports whether the storage service is reachable.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		Get("/api/health")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("storage service unhealthy: %s", res.Status())
	}
	return nil
}

// RegisterPatient creates a placeholder patient entry before any images
// arrive, so pending preloads are visible in the viewer.
func (c *Client) RegisterPatient(ctx context.Context, name, dob, clinicDate string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"patient_name": name,
			"patient_dob":  dob,
			"clinic_date":  clinicDate,
		}).
		Post("/api/patients/register")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("register patient: %s", res.Status())
	}
	return nil
}

// SubmitImage forwards one retrieved image as a multipart submission.
// It implements pacs.ImageSink.
func (c *Client) SubmitImage(ctx context.Context, img pacs.ImageUpload) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("image", fmt.Sprintf("image_%d.jpg", img.Ordinal), bytes.NewReader(img.Payload)).
		SetFormData(map[string]string{
			"patient_name":      img.PatientName,
			"patient_dob":       img.PatientDOB,
			"study_uid":         img.StudyUID,
			"study_description": img.StudyDescription,
			"study_date":        img.StudyDate,
			"image_index":       strconv.Itoa(img.Ordinal),
			"clinic_date":       img.ClinicDate,
			"image_uid":         img.Key,
		}).
		Post("/api/images")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("submit image: %s", res.Status())
	}
	return nil
}

type pendingRefreshes struct {
	Pending map[string]string `json:"pending"`
}

// PendingRefreshes returns patient keys with a queued refresh request,
// mapped to the time the refresh was requested.
func (c *Client) PendingRefreshes(ctx context.Context) (map[string]string, error) {
	var out pendingRefreshes
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/pending_refreshes")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("list pending refreshes: %s", res.Status())
	}
	return out.Pending, nil
}

// ClearRefresh marks a refresh request as fulfilled.
func (c *Client) ClearRefresh(ctx context.Context, patientKey string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Delete("/api/pending_refreshes/" + patientKey)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("clear refresh: %s", res.Status())
	}
	return nil
}
