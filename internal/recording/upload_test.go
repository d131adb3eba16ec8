package recording

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/shortlink"
)

func TestUpload_Success(t *testing.T) {
	store := newMockStorage()
	tc := &mockTranscoder{}
	tr := &mockTranscriber{text: "exactly what the service said"}
	links := &mockLinks{}
	h := NewHandler(nil, store, tc, tr, &mockSummarizer{}, links, testBaseURL, 0)

	body, contentType := multipartBody(t, map[string]string{"category": "Intro"}, "file", "demo.webm", []byte("raw-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	identity := auth.Identity{Subject: "uid-1", Email: "user@example.com"}
	rec := httptest.NewRecorder()
	newRouter(h, &identity).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Transcription != "exactly what the service said" {
		t.Errorf("transcript must be returned verbatim, got %q", resp.Transcription)
	}
	if resp.PublicURL != testBaseURL+"/v/short123" {
		t.Errorf("expected gated short URL, got %q", resp.PublicURL)
	}

	keyPattern := regexp.MustCompile(`^users/user_example_com/Intro/rec_\d+\.mp4$`)
	if len(store.uploadedFiles) != 1 {
		t.Fatalf("expected one media upload, got %d", len(store.uploadedFiles))
	}
	var mediaKey string
	for k := range store.uploadedFiles {
		mediaKey = k
	}
	if !keyPattern.MatchString(mediaKey) {
		t.Errorf("media key %q does not match expected layout", mediaKey)
	}

	textKey := strings.TrimSuffix(mediaKey, ".mp4") + ".txt"
	if got, ok := store.uploadedTexts[textKey]; !ok || got != "exactly what the service said" {
		t.Errorf("expected transcript sibling at %q, got %v", textKey, store.uploadedTexts)
	}

	if len(links.created) != 1 {
		t.Fatalf("expected one short link record, got %d", len(links.created))
	}
	linkRec := links.created[0]
	if linkRec.FileKey != mediaKey || linkRec.Owner != "user@example.com" || linkRec.Kind != shortlink.KindVideo {
		t.Errorf("unexpected link record: %+v", linkRec)
	}
	if linkRec.Transcript != "exactly what the service said" {
		t.Errorf("expected transcript cached on record, got %q", linkRec.Transcript)
	}

	assertNoTempFiles(t, tc)
}

func TestUpload_MissingFileIs400(t *testing.T) {
	h := NewHandler(nil, newMockStorage(), &mockTranscoder{}, &mockTranscriber{}, &mockSummarizer{}, &mockLinks{}, testBaseURL, 0)

	body, contentType := multipartBody(t, map[string]string{"category": "Intro"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	newRouter(h, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpload_AnonymousLandsInPublicBucket(t *testing.T) {
	store := newMockStorage()
	tc := &mockTranscoder{}
	links := &mockLinks{}
	h := NewHandler(nil, store, tc, &mockTranscriber{text: "t"}, &mockSummarizer{}, links, testBaseURL, 0)

	body, contentType := multipartBody(t, nil, "file", "clip.mp4", []byte("raw"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	newRouter(h, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	for key := range store.uploadedFiles {
		if !strings.HasPrefix(key, "users/public/unsorted/") {
			t.Errorf("expected public/unsorted key, got %q", key)
		}
	}
	if len(links.created) != 1 || links.created[0].Kind != shortlink.KindRedirect {
		t.Errorf("anonymous upload should create an ungated record, got %+v", links.created)
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.PublicURL, testBaseURL+"/s/") {
		t.Errorf("expected /s/ URL for ungated record, got %q", resp.PublicURL)
	}
}

func TestUpload_TranscodeFailureIs500AndCleansUp(t *testing.T) {
	store := newMockStorage()
	tc := &mockTranscoder{err: errSimulated}
	links := &mockLinks{}
	h := NewHandler(nil, store, tc, &mockTranscriber{}, &mockSummarizer{}, links, testBaseURL, 0)

	body, contentType := multipartBody(t, nil, "file", "demo.webm", []byte("raw"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	newRouter(h, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "simulated failure") {
		t.Errorf("expected tool diagnostic in error body, got %s", rec.Body.String())
	}
	if len(store.uploadedFiles) != 0 || len(store.uploadedTexts) != 0 {
		t.Error("no storage writes should happen after transcode failure")
	}
	if len(links.created) != 0 {
		t.Error("no short link should be created on failure")
	}
	assertNoTempFiles(t, tc)
}

func TestUpload_TranscribeFailureIs500(t *testing.T) {
	store := newMockStorage()
	tc := &mockTranscoder{}
	h := NewHandler(nil, store, tc, &mockTranscriber{err: errSimulated}, &mockSummarizer{}, &mockLinks{}, testBaseURL, 0)

	body, contentType := multipartBody(t, nil, "file", "demo.webm", []byte("raw"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	newRouter(h, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(store.uploadedFiles) != 0 {
		t.Error("no media write should happen after transcription failure")
	}
	assertNoTempFiles(t, tc)
}

func TestUpload_LinkFailureQueuesOrphans(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	// Both written blobs go onto the orphan queue when the link write fails.
	mock.ExpectExec(`INSERT INTO orphan_blobs`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO orphan_blobs`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := newMockStorage()
	tc := &mockTranscoder{}
	h := NewHandler(mock, store, tc, &mockTranscriber{text: "t"}, &mockSummarizer{}, &mockLinks{createErr: errSimulated}, testBaseURL, 0)

	body, contentType := multipartBody(t, nil, "file", "demo.webm", []byte("raw"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-with-ai", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	newRouter(h, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
	assertNoTempFiles(t, tc)
}
