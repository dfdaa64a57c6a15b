package summary

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultNote    = "Please summarize the whole issue."
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 4 << 20
)

type wireRequest struct {
	JiraKey string `json:"jiraKey"`
	Note    string `json:"note"`
}

// HTTPTransport posts the subject key in the JSON body. Redirects are never
// followed so 3xx responses reach the classifier as sent.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	note     string
}

func NewHTTPTransport(endpoint string, note string, timeout time.Duration) *HTTPTransport {
	if strings.TrimSpace(note) == "" {
		note = DefaultNote
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		endpoint: endpoint,
		note:     note,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, d Descriptor) (Response, error) {
	if strings.TrimSpace(t.endpoint) == "" {
		return Response{}, errors.New("summary endpoint not configured")
	}
	b, err := json.Marshal(wireRequest{JiraKey: d.SubjectKey, Note: t.note})
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(b))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "worksummary/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{
		Status:       resp.StatusCode,
		RetryAfterMs: retryAfterMs(resp),
	}
	if vals, ok := resp.Header["Location"]; ok && len(vals) > 0 {
		out.HasLocation = true
		out.Location = vals[0]
	}
	out.Body, out.BodyErr = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return out, nil
}

func retryAfterMs(resp *http.Response) int64 {
	if resp == nil {
		return 0
	}
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return int64(secs) * 1000
	}
	if ts, err := http.ParseTime(ra); err == nil {
		ms := time.Until(ts).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return ms
	}
	return 0
}
