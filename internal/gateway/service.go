package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/normalize"
	"github.com/onixgrid/bapbridge/internal/protocol"
	"github.com/onixgrid/bapbridge/internal/traces"
)

// Service runs one protocol action end-to-end.
type Service struct {
	normalizer   *normalize.Normalizer
	correlations *correlation.Store
	upstream     *Upstream
	log          *slog.Logger
}

func NewService(n *normalize.Normalizer, store *correlation.Store, upstream *Upstream, log *slog.Logger) *Service {
	return &Service{normalizer: n, correlations: store, upstream: upstream, log: log}
}

// Execute normalizes the request, dispatches it upstream, and awaits the
// asynchronous result. The correlation is registered only after the
// upstream synchronously accepted the dispatch, so a dispatch failure
// never leaks a pending entry. The returned transaction id is set as
// soon as normalization succeeds, even on later failure.
func (s *Service) Execute(ctx context.Context, action protocol.Action, req *normalize.Request, subject string) (*correlation.Result, string, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "gateway.execute", traces.ProtocolAction(string(action)))
	defer span.End()

	env, err := s.normalizer.Normalize(ctx, action, req, subject)
	if err != nil {
		reqRejected.WithLabelValues(string(action), "normalize").Inc()
		return nil, "", err
	}
	txnID := env.Context.TransactionID
	span.SetAttributes(traces.TransactionID(txnID))
	log := s.log.With("action", action, "transaction_id", txnID)

	body, err := s.upstream.Dispatch(ctx, action, env)
	if err != nil {
		log.Warn("upstream dispatch failed", "error", err)
		reqRejected.WithLabelValues(string(action), "dispatch").Inc()
		return nil, txnID, err
	}

	pending, err := s.correlations.Open(txnID, action)
	if err != nil {
		reqRejected.WithLabelValues(string(action), "duplicate").Inc()
		return nil, txnID, err
	}

	switch status := ClassifyAck(body); status {
	case AckRejected:
		s.correlations.Cancel(txnID)
		log.Warn("upstream rejected dispatch", "ack", status.String())
		reqRejected.WithLabelValues(string(action), "nack").Inc()
		return nil, txnID, &APIError{
			Status:  http.StatusBadGateway,
			Code:    CodeUpstreamError,
			Message: nackMessage(body),
		}
	case AckUnknown:
		s.correlations.Cancel(txnID)
		log.Warn("unrecognized upstream acknowledgement", "body_len", len(body))
		reqRejected.WithLabelValues(string(action), "unknown_ack").Inc()
		return nil, txnID, &APIError{
			Status:  http.StatusBadGateway,
			Code:    CodeUpstreamError,
			Message: "unrecognized acknowledgement from upstream",
		}
	}

	result, err := pending.Wait(ctx)
	if err != nil {
		reqRejected.WithLabelValues(string(action), "wait").Inc()
		return nil, txnID, err
	}

	if result.Error != nil {
		log.Info("callback carried business error", "code", result.Error.Code)
		reqRejected.WithLabelValues(string(action), "business").Inc()
		code := result.Error.Code
		if code == "" {
			code = CodeBusinessError
		}
		return nil, txnID, &APIError{
			Status:  http.StatusBadRequest,
			Code:    code,
			Message: result.Error.Message,
		}
	}

	reqCompleted.WithLabelValues(string(action)).Inc()
	reqDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	log.Info("action completed", "elapsed", time.Since(start))
	return &result, txnID, nil
}

// nackMessage pulls a business error out of a NACK body when the
// counterparty bothered to attach one.
func nackMessage(body []byte) string {
	var parsed struct {
		Error *protocol.Error `json:"error"`
		Message struct {
			Error *protocol.Error `json:"error"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if pe := parsed.Error; pe != nil && pe.Message != "" {
			return pe.Message
		}
		if pe := parsed.Message.Error; pe != nil && pe.Message != "" {
			return pe.Message
		}
	}
	return "request rejected by upstream (NACK)"
}
