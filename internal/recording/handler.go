// Package recording implements the upload pipeline and the per-owner
// listing, deletion, and transcript-analysis endpoints.
package recording

import (
	"context"

	"github.com/recintake/recintake/internal/database"
	"github.com/recintake/recintake/internal/shortlink"
	"github.com/recintake/recintake/internal/storage"
)

type ObjectStorage interface {
	UploadFile(ctx context.Context, key string, filePath string, contentType string) error
	UploadText(ctx context.Context, key string, text string) error
	ReadObject(ctx context.Context, key string) ([]byte, error)
	ListPrefix(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	PublicURL(key string) string
	KeyFromPublicURL(url string) (string, bool)
}

type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type LinkStore interface {
	Create(ctx context.Context, rec shortlink.Record) (string, error)
	DeleteByFileKey(ctx context.Context, fileKey string) error
	DeleteByTargetURL(ctx context.Context, targetURL string) error
}

type Handler struct {
	db             database.DBTX
	storage        ObjectStorage
	transcoder     Transcoder
	transcriber    Transcriber
	summarizer     Summarizer
	links          LinkStore
	baseURL        string
	maxUploadBytes int64
}

func NewHandler(db database.DBTX, s ObjectStorage, tc Transcoder, tr Transcriber, sum Summarizer, links LinkStore, baseURL string, maxUploadBytes int64) *Handler {
	return &Handler{
		db:             db,
		storage:        s,
		transcoder:     tc,
		transcriber:    tr,
		summarizer:     sum,
		links:          links,
		baseURL:        baseURL,
		maxUploadBytes: maxUploadBytes,
	}
}
