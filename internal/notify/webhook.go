// Copyright 2026 Davwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify delivers notifications to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"davwatch/internal/common"
)

// MaxContentLength is the longest text body the webhook accepts.
const MaxContentLength = 2000

// Attachment is a single file sent along with a message. Data is held only
// for the duration of one Deliver call.
type Attachment struct {
	Name string
	Data []byte
}

// Message is a short text body with an optional attachment.
type Message struct {
	Text       string
	Attachment *Attachment
}

// Options configures a Webhook.
type Options struct {
	URL      string
	Username string        // display name override, optional
	Timeout  time.Duration // per request (default: 30s)
	Client   *http.Client  // overrides Timeout when set
}

// Webhook posts messages to a Discord-compatible webhook endpoint.
type Webhook struct {
	url      string
	username string
	client   *http.Client
}

type payload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// NewWebhook creates a Webhook.
func NewWebhook(opts Options) (*Webhook, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", common.ErrInvalidConfig)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Webhook{url: opts.URL, username: opts.Username, client: client}, nil
}

// Accepted reports whether status signals a successful delivery.
func Accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

// Deliver sends msg. Any status other than 200 or 204 is a failure wrapping
// common.ErrDeliveryFailed.
func (w *Webhook) Deliver(ctx context.Context, msg Message) error {
	body, contentType, err := w.encode(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", common.ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if !Accepted(resp.StatusCode) {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", common.ErrDeliveryFailed, resp.StatusCode, bytes.TrimSpace(detail))
	}
	io.Copy(io.Discard, resp.Body)

	log.WithFields(log.Fields{
		"status":     resp.StatusCode,
		"attachment": msg.Attachment != nil,
	}).Trace("notify: delivered")
	return nil
}

func (w *Webhook) encode(msg Message) (io.Reader, string, error) {
	p := payload{Content: Truncate(msg.Text, MaxContentLength), Username: w.username}
	js, err := json.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	if msg.Attachment == nil {
		return bytes.NewReader(js), "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload_json", string(js)); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("file", msg.Attachment.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(msg.Attachment.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
