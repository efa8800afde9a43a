// Package httpclient implements internal/workeragent.MasterClient over
// net/http, speaking the wire contract internal/httpapi.Server exposes.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// Client is a worker's RPC handle to the master.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client targeting baseURL (e.g. "http://localhost:8080"),
// with requestTimeout applied to each call as the http.Client timeout.
func New(baseURL string, requestTimeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
	}
}

type assignResponse struct {
	ID      string `json:"id"`
	Problem struct {
		X uint64 `json:"x"`
	} `json:"problem"`
}

type submitRequest struct {
	TaskID   string `json:"task_id"`
	XSquared uint64 `json:"x_squared"`
}

type heartbeatRequest struct {
	TaskID   string  `json:"task_id"`
	Progress float64 `json:"progress"`
}

type errorResponse struct {
	Kind string `json:"kind"`
}

// AssignTask requests a new task from the master. ok is false if none
// is currently available (204 No Content).
func (c *Client) AssignTask(ctx context.Context) (task scheduler.Task, ok bool, err error) {
	resp, err := c.post(ctx, "/task/assign", nil)
	if err != nil {
		return scheduler.Task{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return scheduler.Task{}, false, nil
	case http.StatusOK:
		var body assignResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return scheduler.Task{}, false, fmt.Errorf("httpclient: decode assign response: %w", err)
		}
		return scheduler.Task{
			ID:       body.ID,
			Problem:  scheduler.Problem{X: body.Problem.X},
			Status:   scheduler.StatusAssigned,
			Progress: 0,
		}, true, nil
	default:
		return scheduler.Task{}, false, decodeError(resp)
	}
}

// SubmitSolution reports solution for taskID. Returns
// scheduler.ErrTaskNotFound if the master no longer knows taskID.
func (c *Client) SubmitSolution(ctx context.Context, taskID string, solution scheduler.Solution) error {
	resp, err := c.post(ctx, "/task/submit", submitRequest{TaskID: taskID, XSquared: solution.XSquared})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return scheduler.ErrTaskNotFound
	default:
		return decodeError(resp)
	}
}

// SubmitHeartbeat reports progress for taskID. Returns
// scheduler.ErrTaskNotFound or scheduler.ErrInvalidTaskStatus when the
// master has revoked or completed the lease.
func (c *Client) SubmitHeartbeat(ctx context.Context, taskID string, progress float64) error {
	resp, err := c.post(ctx, "/task/heartbeat", heartbeatRequest{TaskID: taskID, Progress: progress})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return scheduler.ErrTaskNotFound
	case http.StatusBadRequest:
		return scheduler.ErrInvalidTaskStatus
	default:
		return decodeError(resp)
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var reader bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode request: %w", err)
		}
		reader = *bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Kind == "" {
		return fmt.Errorf("httpclient: unexpected status %d", resp.StatusCode)
	}
	return errors.New("httpclient: master returned " + body.Kind)
}
