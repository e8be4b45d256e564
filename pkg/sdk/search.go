package takeoff

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// SearchRequest describes one search run. ConditionID comes from the URL
// and is ignored here.
type SearchRequest = domain.ScopeRequest

// ProgressEvent is one event from a streamed search run.
type ProgressEvent = domain.ProgressEvent

// Search runs a symbol search and blocks until the terminal result.
func (c *Client) Search(
	ctx context.Context, conditionID string, req SearchRequest,
) (domain.RunResult, error) {
	var out domain.RunResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/conditions/"+conditionID+"/search", req, &out)
	return out, err
}

// SearchStream runs a symbol search with streamed progress. fn is called
// for every event in order; returning an error stops consumption and
// cancels the stream. The final Complete or Error event carries the run
// outcome.
func (c *Client) SearchStream(
	ctx context.Context, conditionID string, req SearchRequest, fn func(ProgressEvent) error,
) error {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/conditions/"+conditionID+"/search", req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("takeoff: start search stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("takeoff: parse event frame: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Type == domain.EventComplete || ev.Type == domain.EventError {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("takeoff: read search stream: %w", err)
	}
	return fmt.Errorf("takeoff: stream ended without a terminal event")
}
