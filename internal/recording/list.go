package recording

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/httputil"
	"github.com/recintake/recintake/internal/keyspace"
)

type videoEntry struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	TextURL    string    `json:"textUrl"`
	UploadedAt time.Time `json:"uploadedAt"`
	Category   string    `json:"category"`
}

type listResponse struct {
	Videos []videoEntry `json:"videos"`
}

type deleteRequest struct {
	VideoKey string `json:"videoKey"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

// List handles GET /api/my-videos. Enumeration failures degrade to an empty
// list rather than surfacing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	bucket := keyspace.OwnerBucket(identity.OwnerID())

	entries := []videoEntry{}
	objects, err := h.storage.ListPrefix(r.Context(), keyspace.Prefix(bucket))
	if err != nil {
		slog.Warn("list: enumeration failed, returning empty list", "bucket", bucket, "error", err)
		httputil.WriteJSON(w, http.StatusOK, listResponse{Videos: entries})
		return
	}

	for _, obj := range objects {
		if !keyspace.IsMediaKey(obj.Key) {
			continue
		}
		uploadedAt, ok := keyspace.ParseUploadedAt(obj.Key)
		if !ok {
			uploadedAt = obj.LastModified
		}
		entries = append(entries, videoEntry{
			Key:        obj.Key,
			URL:        h.storage.PublicURL(obj.Key),
			TextURL:    h.storage.PublicURL(keyspace.TranscriptKey(obj.Key)),
			UploadedAt: uploadedAt,
			Category:   keyspace.ParseCategory(obj.Key),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})

	httputil.WriteJSON(w, http.StatusOK, listResponse{Videos: entries})
}

// Delete handles DELETE /api/delete-video. The media delete is the only hard
// failure; transcript sibling and short-link cleanup are best-effort.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoKey == "" {
		httputil.WriteError(w, http.StatusBadRequest, "videoKey is required")
		return
	}

	bucket := keyspace.OwnerBucket(identity.OwnerID())
	if !keyspace.OwnsKey(bucket, req.VideoKey) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.storage.DeleteObject(r.Context(), req.VideoKey); err != nil {
		slog.Error("delete: media delete failed", "key", req.VideoKey, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	textKey := keyspace.TranscriptKey(req.VideoKey)
	if err := h.storage.DeleteObject(r.Context(), textKey); err != nil {
		slog.Warn("delete: transcript delete failed", "key", textKey, "error", err)
	}

	if err := h.links.DeleteByFileKey(r.Context(), req.VideoKey); err != nil {
		slog.Warn("delete: short link cleanup by key failed", "key", req.VideoKey, "error", err)
	}
	// Legacy records carry no file-key reference; fall back to the long URL.
	if err := h.links.DeleteByTargetURL(r.Context(), h.storage.PublicURL(req.VideoKey)); err != nil {
		slog.Warn("delete: short link cleanup by url failed", "key", req.VideoKey, "error", err)
	}

	httputil.WriteJSON(w, http.StatusOK, deleteResponse{Success: true})
}
