package shortlink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"
	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/database"
	"github.com/recintake/recintake/internal/geoip"
	"github.com/recintake/recintake/internal/httputil"
	"github.com/recintake/recintake/internal/keyspace"
)

type Handler struct {
	store   *Store
	db      database.DBTX
	geo     *geoip.Resolver
	baseURL string
}

func NewHandler(store *Store, db database.DBTX, geo *geoip.Resolver, baseURL string) *Handler {
	return &Handler{store: store, db: db, geo: geo, baseURL: baseURL}
}

type shortenRequest struct {
	LongURL string `json:"longUrl"`
	Type    string `json:"type"`
}

type shortenResponse struct {
	ShortURL string `json:"shortUrl"`
}

type secureVideoResponse struct {
	URL           string `json:"url"`
	Transcription string `json:"transcription"`
}

// ShortURL renders the public URL for a record: gated records resolve under
// /v/, everything else under /s/.
func (h *Handler) ShortURL(id, kind string) string {
	if kind == KindVideo {
		return h.baseURL + "/v/" + id
	}
	return h.baseURL + "/s/" + id
}

func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LongURL == "" {
		httputil.WriteError(w, http.StatusBadRequest, "longUrl is required")
		return
	}
	if u, err := url.Parse(req.LongURL); err != nil || u.Scheme == "" || u.Host == "" {
		httputil.WriteError(w, http.StatusBadRequest, "longUrl must be an absolute URL")
		return
	}

	kind := KindRedirect
	if req.Type == KindVideo {
		kind = KindVideo
	}

	rec := Record{TargetURL: req.LongURL, Kind: kind}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		rec.Owner = id.OwnerID()
	}

	id, err := h.store.Create(r.Context(), rec)
	if err != nil {
		slog.Error("shorten: create failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create short link")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, shortenResponse{ShortURL: h.ShortURL(id, kind)})
}

// Resolve handles /s/{id}: a plain redirect to the stored target. Gated
// records bounce to their gate page instead of leaking the target URL.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "short link not found")
			return
		}
		slog.Error("resolve: lookup failed", "id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to resolve short link")
		return
	}

	if rec.Kind == KindVideo {
		http.Redirect(w, r, h.baseURL+"/v/"+id, http.StatusFound)
		return
	}

	h.recordView(r, id)
	http.Redirect(w, r, rec.TargetURL, http.StatusFound)
}

// GatePage handles /v/{id}: serves the client-side gate for a video record.
func (h *Handler) GatePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "short link not found")
			return
		}
		slog.Error("gate: lookup failed", "id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to resolve short link")
		return
	}
	if rec.Kind != KindVideo {
		http.Redirect(w, r, h.baseURL+"/s/"+id, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := gatePageData{ID: id, Nonce: httputil.NonceFromContext(r.Context())}
	if err := gatePageTemplate.Execute(w, data); err != nil {
		slog.Error("gate: template render failed", "id", id, "error", err)
	}
}

// SecureVideo handles /api/get-secure-video/{id}: the authenticated exchange
// behind the gate page. The viewer must be the record's owner.
func (h *Handler) SecureVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "short link not found")
			return
		}
		slog.Error("secure-video: lookup failed", "id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to resolve short link")
		return
	}
	if rec.Kind != KindVideo {
		httputil.WriteError(w, http.StatusNotFound, "short link not found")
		return
	}
	if keyspace.OwnerBucket(rec.Owner) != keyspace.OwnerBucket(identity.OwnerID()) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}

	h.recordView(r, id)
	httputil.WriteJSON(w, http.StatusOK, secureVideoResponse{
		URL:           rec.TargetURL,
		Transcription: rec.Transcript,
	})
}

// recordView writes a best-effort view event. Failures are logged and never
// surface to the viewer.
func (h *Handler) recordView(r *http.Request, shortID string) {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}
	country, city := h.geo.Lookup(ip)

	ua := useragent.New(r.UserAgent())
	browser, _ := ua.Browser()

	// Detached context: the event outlives a viewer who hangs up mid-redirect.
	if _, err := h.db.Exec(context.WithoutCancel(r.Context()),
		`INSERT INTO view_events (short_id, ip, country, city, browser, os)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		shortID, ip, country, city, browser, ua.OS(),
	); err != nil {
		slog.Warn("view event insert failed", "short_id", shortID, "error", err)
	}
}
