package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/siteray/siteray-agent/models"
)

// Progress stream event types.
const (
	EventProgress          = "progress"
	EventComplete          = "complete"
	EventConnectionExpired = "connection_expired"
)

// StreamProgress follows the server-sent progress stream of a scan and calls
// fn for every event. It returns nil after a complete or connection_expired
// event or when the server closes the stream, and ctx.Err() when cancelled.
// Comment lines (heartbeats) are skipped.
func (c *Client) StreamProgress(ctx context.Context, scanID, token string, fn func(models.ProgressEvent) error) error {
	path := "/api/scans/" + url.PathEscape(scanID) + "/progress?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.stream.Do(req) // #nosec G107 -- base URL is user configuration
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("opening progress stream: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck

	if !ok(res.StatusCode) {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
		return newError(res.StatusCode, b, "Progress stream failed")
	}

	err = readEvents(res.Body, func(ev models.ProgressEvent) (bool, error) {
		if err := fn(ev); err != nil {
			return false, err
		}
		return ev.Type == EventComplete || ev.Type == EventConnectionExpired, nil
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents parses a text/event-stream body. fn returns true to stop.
func readEvents(r io.Reader, fn func(models.ProgressEvent) (bool, error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxBodyBytes)

	var (
		typ  string
		data []string
	)
	dispatch := func() (bool, error) {
		if len(data) == 0 {
			typ = ""
			return false, nil
		}
		ev := models.ProgressEvent{Type: typ, Data: []byte(strings.Join(data, "\n"))}
		if ev.Type == "" {
			ev.Type = "message"
		}
		typ, data = "", nil
		return fn(ev)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			stop, err := dispatch()
			if err != nil || stop {
				return err
			}
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				typ = value
			case "data":
				data = append(data, value)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading progress stream: %w", err)
	}
	_, err := dispatch()
	return err
}
