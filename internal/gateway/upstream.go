package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/onixgrid/bapbridge/internal/protocol"
)

// maxReplyBytes bounds how much of a synchronous upstream reply we read.
const maxReplyBytes = 1 << 20

// Upstream dispatches canonical envelopes to the counterparty's
// action-specific endpoints.
type Upstream struct {
	base   string
	client *http.Client
}

// NewUpstream creates a dispatcher for the given base URL with a bounded
// per-request timeout.
func NewUpstream(base string, timeout time.Duration) *Upstream {
	return &Upstream{
		base: strings.TrimRight(base, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dispatch POSTs the envelope to <base>/<action> and returns the raw
// reply body for acknowledgement classification. HTTP error responses
// become 502 APIErrors with whatever structure the counterparty gave us;
// network-level failures become 500s.
func (u *Upstream) Dispatch(ctx context.Context, action protocol.Action, env *protocol.Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: fmt.Sprintf("encode envelope: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base+"/"+string(action), bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return nil, upstreamError(resp.StatusCode, body)
	}
	return body, nil
}

// upstreamError extracts the most structured error the reply body offers:
// message.error with code/message/paths, a plain error string, or the
// bare HTTP status text.
func upstreamError(status int, body []byte) *APIError {
	var parsed struct {
		Message struct {
			Error *protocol.Error `json:"error"`
		} `json:"message"`
		Error json.RawMessage `json:"error"`
	}
	apiErr := &APIError{Status: http.StatusBadGateway, Code: CodeUpstreamError}

	if err := json.Unmarshal(body, &parsed); err == nil {
		if pe := parsed.Message.Error; pe != nil && pe.Message != "" {
			apiErr.Message = pe.Message
			if pe.Code != "" {
				apiErr.Message = pe.Code + ": " + pe.Message
			}
			apiErr.Details = pathDetails(pe)
			return apiErr
		}
		var plain string
		if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &plain) == nil && plain != "" {
			apiErr.Message = plain
			return apiErr
		}
	}
	apiErr.Message = http.StatusText(status)
	return apiErr
}

func pathDetails(pe *protocol.Error) []Detail {
	if pe.Paths == "" {
		return nil
	}
	var details []Detail
	for _, p := range strings.Split(pe.Paths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		details = append(details, Detail{Field: p, Message: pe.Message})
	}
	return details
}
