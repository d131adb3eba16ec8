package recording

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/recintake/recintake/internal/httputil"
)

type analyzeRequest struct {
	TextURL string `json:"textUrl"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

// AnalyzeText handles POST /api/analyze-text: fetch a stored transcript and
// forward it to the summarization service. The specific cause of a failure is
// collapsed into one generic message.
func (h *Handler) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TextURL == "" {
		httputil.WriteError(w, http.StatusBadRequest, "textUrl is required")
		return
	}

	key, ok := h.storage.KeyFromPublicURL(req.TextURL)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "textUrl is not a stored transcript")
		return
	}

	text, err := h.storage.ReadObject(r.Context(), key)
	if err != nil {
		slog.Error("analyze: transcript fetch failed", "key", key, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to analyze text")
		return
	}

	analysis, err := h.summarizer.Summarize(r.Context(), string(text))
	if err != nil {
		slog.Error("analyze: summarization failed", "key", key, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to analyze text")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis})
}
