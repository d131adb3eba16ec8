package recording

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/httputil"
	"github.com/recintake/recintake/internal/keyspace"
	"github.com/recintake/recintake/internal/shortlink"
)

// Pipeline stages, advanced strictly in order. Each stage is a hard
// dependency on the previous one's success; the stage name is carried in the
// error so failures locate themselves.
const (
	stageReceived    = "received"
	stageTranscoded  = "transcoded"
	stageTranscribed = "transcribed"
	stageStored      = "stored"
	stageLinked      = "linked"
)

type uploadResponse struct {
	PublicURL     string `json:"publicUrl"`
	Transcription string `json:"transcription"`
}

// Upload handles POST /api/upload-with-ai. Identity is optional: anonymous
// uploads land in the public bucket.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	ownerID := ""
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		ownerID = id.OwnerID()
	} else {
		// Permissive fallback: an unauthenticated client may still name an
		// owner folder. Malformed values collapse to the public bucket.
		ownerID = r.FormValue("owner")
	}
	category := keyspace.SanitizeCategory(r.FormValue("category"))

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".webm"
	}

	tmpIn, err := os.CreateTemp("", "recintake-upload-*"+ext)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	tmpInPath := tmpIn.Name()
	if _, err := io.Copy(tmpIn, file); err != nil {
		_ = tmpIn.Close()
		removeTempFile(tmpInPath)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := tmpIn.Close(); err != nil {
		removeTempFile(tmpInPath)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	// The pipeline owns tmpInPath from here; cleanup happens on every exit
	// path inside runPipeline.
	result, err := h.runPipeline(r, tmpInPath, ownerID, category)
	if err != nil {
		slog.Error("upload pipeline failed", "owner", keyspace.OwnerBucket(ownerID), "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) runPipeline(r *http.Request, tmpInPath, ownerID, category string) (*uploadResponse, error) {
	ctx := r.Context()

	tmpOut, err := os.CreateTemp("", "recintake-transcode-*.mp4")
	if err != nil {
		removeTempFile(tmpInPath)
		return nil, fmt.Errorf("%s: create transcode output: %w", stageReceived, err)
	}
	tmpOutPath := tmpOut.Name()
	_ = tmpOut.Close()

	// Both temp files are deleted on every exit path, success or failure.
	// Either may already be gone; that is fine.
	defer func() {
		removeTempFile(tmpInPath)
		removeTempFile(tmpOutPath)
	}()

	if err := h.transcoder.Transcode(ctx, tmpInPath, tmpOutPath); err != nil {
		return nil, fmt.Errorf("%s: %w", stageReceived, err)
	}

	transcript, err := h.transcriber.Transcribe(ctx, tmpOutPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stageTranscoded, err)
	}

	bucket := keyspace.OwnerBucket(ownerID)
	mediaKey := keyspace.FileKey(bucket, category, time.Now(), ".mp4")
	textKey := keyspace.TranscriptKey(mediaKey)

	if err := h.storage.UploadFile(ctx, mediaKey, tmpOutPath, "video/mp4"); err != nil {
		return nil, fmt.Errorf("%s: %w", stageTranscribed, err)
	}
	// Independent write: a failure here leaves the media blob behind, so the
	// key goes onto the orphan queue for the sweeper.
	if err := h.storage.UploadText(ctx, textKey, transcript); err != nil {
		h.recordOrphans(r, mediaKey)
		return nil, fmt.Errorf("%s: %w", stageTranscribed, err)
	}

	kind := shortlink.KindVideo
	if bucket == keyspace.PublicBucket {
		// Nothing to gate on without an owner.
		kind = shortlink.KindRedirect
	}
	id, err := h.links.Create(ctx, shortlink.Record{
		TargetURL:  h.storage.PublicURL(mediaKey),
		FileKey:    mediaKey,
		Owner:      ownerID,
		Kind:       kind,
		Transcript: transcript,
	})
	if err != nil {
		h.recordOrphans(r, mediaKey, textKey)
		return nil, fmt.Errorf("%s: %w", stageStored, err)
	}

	return &uploadResponse{
		PublicURL:     h.shortURL(id, kind),
		Transcription: transcript,
	}, nil
}

func (h *Handler) shortURL(id, kind string) string {
	if kind == shortlink.KindVideo {
		return h.baseURL + "/v/" + id
	}
	return h.baseURL + "/s/" + id
}

// removeTempFile is the explicit best-effort cleanup step: failure is logged,
// never propagated, and a file that is already gone is not a failure.
func removeTempFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("temp file cleanup failed", "path", path, "error", err)
	}
}
