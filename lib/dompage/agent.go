package dompage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"pacs-preloader/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Agent drives the hosting page through the in-browser shim, which
// exposes the DOM primitives of every frame it can reach over local
// HTTP. The shim reports cross-origin frames with a conflict status so
// they can be listed but not inspected.
type Agent struct {
	http *resty.Client
}

type AgentOptions struct {
	BaseUrl string
	// Timeout for a single primitive operation. Defaults to 10s.
	Timeout time.Duration
}

func NewAgent(opts AgentOptions) (*Agent, error) {
	_, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 10
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "dompage/agent")

	return &Agent{http: client}, nil
}

type frameInfo struct {
	Id int `json:"id"`
}

type frameList struct {
	Frames []frameInfo `json:"frames"`
}

func (a *Agent) Frames(ctx context.Context) ([]Document, error) {
	var list frameList
	res, err := a.http.R().
		SetContext(ctx).
		SetResult(&list).
		Get("/frames")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("list frames: %s", res.Status())
	}

	frames := make([]Document, len(list.Frames))
	for i, info := range list.Frames {
		frames[i] = agentFrame{agent: a, id: info.Id}
	}
	return frames, nil
}

type agentFrame struct {
	agent *Agent
	id    int
}

func (f agentFrame) Snapshot(ctx context.Context) (*goquery.Document, error) {
	res, err := f.agent.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/frames/%d/html", f.id))
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("frame %d is not inspectable: %s", f.id, res.Status())
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

func (f agentFrame) do(ctx context.Context, op string, body any) error {
	res, err := f.agent.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/frames/%d/%s", f.id, op))
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("%s on frame %d: %s", op, f.id, res.Status())
	}
	return nil
}

func (f agentFrame) SetInput(ctx context.Context, name, value string) error {
	return f.do(ctx, "input", map[string]string{"name": name, "value": value})
}

func (f agentFrame) SelectOption(ctx context.Context, name, value string) error {
	return f.do(ctx, "select", map[string]string{"name": name, "value": value})
}

func (f agentFrame) ClickButton(ctx context.Context, label string) error {
	return f.do(ctx, "click", map[string]string{"label": label})
}

func (f agentFrame) ActivateRow(ctx context.Context, uid string) error {
	return f.do(ctx, "activate", map[string]string{"uid": uid})
}
