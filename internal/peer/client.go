package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/network"
)

const (
	requestTimeout = 10 * time.Second
	retryLimit     = 3
	retryBase      = time.Millisecond
)

// Client pushes coordination calls to the other parties of a job over
// HTTP. Transport failures and 5xx responses are retried with
// exponential backoff, an explicit rejection from the peer is final.
type Client struct {
	book       *network.AddressBook
	httpClient *http.Client
	token      string
	logger     arbor.ILogger
}

// apiResponse is the envelope every platform endpoint answers with.
type apiResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewClient creates a peer client authenticating with the given bearer
// token.
func NewClient(book *network.AddressBook, token string, logger arbor.ILogger) *Client {
	return &Client{
		book: book,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		token:  token,
		logger: logger,
	}
}

// Submit replicates a job creation to the named party.
func (c *Client) Submit(ctx context.Context, party string, req *interfaces.SubmitRequest) error {
	return c.post(ctx, party, "/api/v1/jobs", req)
}

// Rerun asks the named party to restart a finished job.
func (c *Client) Rerun(ctx context.Context, party, jobID string) error {
	return c.post(ctx, party, fmt.Sprintf("/api/v1/jobs/%s/rerun", jobID), nil)
}

// Cancel asks the named party to stop a job.
func (c *Client) Cancel(ctx context.Context, party, jobID string) error {
	return c.post(ctx, party, fmt.Sprintf("/api/v1/jobs/%s/cancel", jobID), nil)
}

// UpdateTask reports task progress to the named party.
func (c *Client) UpdateTask(ctx context.Context, party, jobID string, update *interfaces.TaskUpdate) error {
	path := fmt.Sprintf("/api/v1/tasks/%s/%s", jobID, update.TaskName)
	return c.do(ctx, party, http.MethodPatch, path, update)
}

func (c *Client) post(ctx context.Context, party, path string, body interface{}) error {
	return c.do(ctx, party, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, party, method, path string, body interface{}) error {
	addr, ok := c.book.Get(party)
	if !ok {
		return fmt.Errorf("party %s not present in address book", party)
	}
	url := common.JoinURL(addr.Address, path)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s: %w", party, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < retryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBase << uint(attempt)):
			}
		}

		retryable, err := c.once(ctx, addr, method, url, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return fmt.Errorf("party %s rejected %s %s: %w", party, method, path, err)
		}
		c.logger.Warn().
			Err(err).
			Str("party", party).
			Str("url", url).
			Int("attempt", attempt+1).
			Msg("Peer request failed, retrying")
	}
	return fmt.Errorf("party %s unreachable after %d attempts: %w", party, retryLimit, lastErr)
}

// once performs a single exchange and reports whether a failure is
// worth retrying.
func (c *Client) once(ctx context.Context, addr *network.PartyAddress, method, url string, payload []byte) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range addr.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return true, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	if len(data) == 0 {
		return true, fmt.Errorf("status %d: empty response body", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return true, fmt.Errorf("status %d: unparseable response: %w", resp.StatusCode, err)
	}
	if !parsed.Success {
		return false, fmt.Errorf("%s", parsed.ErrorMessage)
	}
	return false, nil
}
