package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zhengjr9/thinkflow/internal/adapter"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
	"github.com/zhengjr9/thinkflow/internal/httputil"
	"github.com/zhengjr9/thinkflow/internal/metrics"
	"github.com/zhengjr9/thinkflow/internal/relay"
)

// relayHandler runs the relay for one caller format.
type relayHandler struct {
	relay   *relay.Relay
	adapter adapter.Adapter
}

func (h *relayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	surface := h.adapter.Surface()

	body, streaming, err := h.adapter.DecodeRequest(r)
	if err != nil {
		metrics.ObserveRequest(surface, "rejected")
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The request context ends when the caller disconnects, which closes any
	// open upstream stream. No overall deadline applies.
	stream, err := h.relay.Process(r.Context(), body)
	if err != nil {
		metrics.ObserveRequest(surface, "rejected")
		apierrors.WriteJSONError(w, apierrors.StatusCode(err), err.Error())
		return
	}

	if streaming {
		httputil.SetSSEHeaders(w)
		if err := h.adapter.WriteStreamingResponse(w, stream); err != nil {
			metrics.ObserveRequest(surface, outcome(err))
			slog.Warn("relay stream ended with error", "id", requestID(r.Context()), "surface", surface, "error", err)
			return
		}
		metrics.ObserveRequest(surface, metrics.OutcomeComplete)
		return
	}

	text, err := relay.Collect(stream)
	if err != nil {
		metrics.ObserveRequest(surface, outcome(err))
		writeUpstreamError(w, err)
		return
	}
	if err := h.adapter.WriteBlockingResponse(w, text); err != nil {
		slog.Warn("write response failed", "id", requestID(r.Context()), "surface", surface, "error", err)
		return
	}
	metrics.ObserveRequest(surface, metrics.OutcomeComplete)
}

// outcome separates caller disconnects from upstream failures.
func outcome(err error) string {
	if errors.Is(err, context.Canceled) {
		return metrics.OutcomeCanceled
	}
	return metrics.OutcomeFailed
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	status := apierrors.StatusCode(err)
	if status == http.StatusGatewayTimeout {
		apierrors.WriteJSONError(w, status, "upstream timeout")
		return
	}
	apierrors.WriteJSONError(w, status, "upstream error: "+err.Error())
}
