// Package notify delivers reconciliation outcomes to an HTTP endpoint
// (an Apprise API sidecar, or a Slack-compatible incoming webhook).
// Delivery happens in the background and never holds up a pass.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/http/httperror"
)

type Severity string

const (
	Success Severity = "success"
	Failure Severity = "failure"
)

const (
	FormatApprise = "apprise"
	FormatSlack   = "slack"
)

// Formats lists the supported payload formats.
var Formats = []string{FormatApprise, FormatSlack}

type Notification struct {
	Title    string
	Body     string
	Severity Severity
}

// Notifier accepts notifications. Implementations must not block on
// delivery.
type Notifier interface {
	Notify(n Notification)
}

// Nop drops everything; used when no endpoint is configured.
type Nop struct{}

func (Nop) Notify(Notification) {}

var (
	httpClient = &http.Client{Timeout: 5 * time.Second}
)

// HTTP posts each notification to URL from its own goroutine.
type HTTP struct {
	URL    string
	Format string
	// Username is shown as the sender, for the slack format.
	Username string
	Logger   log.Logger

	client *http.Client
	wg     sync.WaitGroup
}

func NewHTTP(url, format, username string, logger log.Logger) *HTTP {
	if format == "" {
		format = FormatApprise
	}
	return &HTTP{
		URL:      url,
		Format:   format,
		Username: username,
		Logger:   logger,
		client:   httpClient,
	}
}

func (h *HTTP) Notify(n Notification) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		status, err := h.send(n)
		if err != nil {
			h.Logger.Log("notification", n.Title, "err", err)
			return
		}
		h.Logger.Log("notification", n.Title, "status", status)
	}()
}

// Wait blocks until in-flight notifications are delivered or ctx is
// done. Call it before exiting, so a run-once process does not drop
// its last notifications.
func (h *HTTP) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type appriseMsg struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
}

type SlackMsg struct {
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Fallback string `json:"fallback,omitempty"`
	Text     string `json:"text"`
	Color    string `json:"color,omitempty"`
}

func (h *HTTP) payload(n Notification) (interface{}, error) {
	switch h.Format {
	case FormatApprise:
		return appriseMsg{Title: n.Title, Body: n.Body, Type: string(n.Severity)}, nil
	case FormatSlack:
		color := "good"
		if n.Severity == Failure {
			color = "danger"
		}
		return SlackMsg{
			Username: h.Username,
			Text:     n.Title,
			Attachments: []SlackAttachment{{
				Fallback: n.Body,
				Text:     n.Body,
				Color:    color,
			}},
		}, nil
	default:
		return nil, errors.Errorf("unknown notification format %q", h.Format)
	}
}

func (h *HTTP) send(n Notification) (string, error) {
	msg, err := h.payload(n)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return "", errors.Wrap(err, "encoding notification")
	}

	req, err := http.NewRequest("POST", h.URL, buf)
	if err != nil {
		return "", errors.Wrap(err, "constructing notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	client := h.client
	if client == nil {
		client = httpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "executing notification POST")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		return "", &httperror.APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp.Status, nil
}
