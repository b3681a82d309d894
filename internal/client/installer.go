package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logstream"
)

var ErrNoDone = errors.New("log stream ended before the run finished")

// RunError is returned by StreamLogs when the run reported an error event.
type RunError struct {
	Message string
}

func (e *RunError) Error() string { return "install failed: " + e.Message }

func (c *Client) CheckSSH(ctx context.Context, req *model.SSHConfig) (*model.CheckSSHResponse, error) {
	var resp model.CheckSSHResponse
	if err := c.doJSON(ctx, http.MethodPost, "/install/check-ssh", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) WriteConfig(ctx context.Context, cfg *model.InstallConfig) error {
	return c.doJSON(ctx, http.MethodPost, "/install/config", cfg, nil)
}

// RunInstall creates a run and returns its id. The run starts when the log
// is first opened.
func (c *Client) RunInstall(ctx context.Context, req *model.RunRequest) (string, error) {
	var resp model.RunResponse
	if err := c.doJSON(ctx, http.MethodPost, "/install/run", req, &resp); err != nil {
		return "", err
	}
	if resp.RunID == "" {
		return "", fmt.Errorf("server returned no run_id")
	}
	return resp.RunID, nil
}

// StreamLogs follows the run log and returns the panel URL carried by the
// done event. Every event, error included, is passed to fn first.
func (c *Client) StreamLogs(ctx context.Context, runID string, fn func(logstream.Event)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/install/logs/"+url.PathEscape(runID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return "", responseError(resp.StatusCode, body)
	}

	var (
		doneURL string
		done    bool
		runErr  error
	)
	err = readEvents(resp.Body, func(ev logstream.Event) bool {
		if fn != nil {
			fn(ev)
		}
		switch ev.Event {
		case logstream.EventDone:
			doneURL, done = ev.Data, true
			return false
		case logstream.EventError:
			runErr = &RunError{Message: ev.Data}
			return false
		}
		return true
	})
	switch {
	case runErr != nil:
		return "", runErr
	case done:
		return doneURL, nil
	case err != nil:
		return "", err
	case ctx.Err() != nil:
		return "", ctx.Err()
	}
	return "", ErrNoDone
}

func (c *Client) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	var resp model.RunsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/install/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}
