package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/deepfake-detector/api/internal/application/analysis"
	"github.com/deepfake-detector/api/internal/domain/analysis"
	"github.com/deepfake-detector/api/internal/domain/evidence"
	"github.com/deepfake-detector/api/internal/domain/feedback"
)

const knownFrameID = "3f1c2a9e-6f0b-4d8e-9a57-1b2c3d4e5f60"

type fakeAnalyzer struct {
	result   analysis.Result
	err      error
	uploaded []byte
	batch    appanalysis.AnalyzeBatchCommand
	reqID    string
}

func (a *fakeAnalyzer) AnalyzeUpload(_ context.Context, requestID string, r io.Reader) (analysis.Result, error) {
	a.reqID = requestID
	b, err := io.ReadAll(r)
	if err != nil {
		return analysis.Result{}, err
	}
	a.uploaded = b
	return a.result, a.err
}

func (a *fakeAnalyzer) AnalyzeBatch(_ context.Context, cmd appanalysis.AnalyzeBatchCommand) (analysis.Result, error) {
	a.batch = cmd
	return a.result, a.err
}

type fakeEvidence struct {
	frames map[evidence.FrameID]*evidence.Frame
	images map[evidence.FrameID][]byte
}

func (e *fakeEvidence) Get(_ context.Context, id evidence.FrameID) (*evidence.Frame, error) {
	f, ok := e.frames[id]
	if !ok {
		return nil, evidence.ErrNotFound
	}
	return f, nil
}

func (e *fakeEvidence) OpenImage(ctx context.Context, id evidence.FrameID) (*evidence.Frame, io.ReadCloser, error) {
	f, err := e.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return f, io.NopCloser(bytes.NewReader(e.images[id])), nil
}

type fakeFeedback struct {
	submitted []byte
	id        feedback.ID
	err       error
	page      int
	pageSize  int
	list      feedback.PaginatedResult
}

func (f *fakeFeedback) Submit(_ context.Context, raw []byte) (feedback.ID, error) {
	f.submitted = raw
	return f.id, f.err
}

func (f *fakeFeedback) List(_ context.Context, page, pageSize int) (feedback.PaginatedResult, error) {
	f.page, f.pageSize = page, pageSize
	f.list.Page, f.list.PageSize = page, pageSize
	return f.list, f.err
}

type fixture struct {
	analyzer *fakeAnalyzer
	evidence *fakeEvidence
	feedback *fakeFeedback
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		analyzer: &fakeAnalyzer{},
		evidence: &fakeEvidence{
			frames: map[evidence.FrameID]*evidence.Frame{
				knownFrameID: {
					ID:           knownFrameID,
					ObjectKey:    evidence.ObjectKeyFor(knownFrameID),
					ContentType:  "image/jpeg",
					Size:         4,
					Score:        0.42,
					ModelVersion: "20240101000000",
					CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			},
			images: map[evidence.FrameID][]byte{knownFrameID: []byte("jpeg")},
		},
		feedback: &fakeFeedback{id: "fb-1"},
	}
	fx.handler = NewRouter(fx.analyzer, fx.evidence, fx.feedback, Options{MaxUploadBytes: 1 << 20})
	return fx
}

func (fx *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func verdictResult() analysis.Result {
	return analysis.Result{
		Verdict: analysis.Verdict{
			IsDeepfake:         true,
			Confidence:         0.6,
			DeepfakeRatio:      0.8,
			DeepfakeFrameCount: 8,
			FramesAnalyzed:     10,
		},
		RetainedFrameIDs: []string{"a", "b"},
	}
}

func TestBanner(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, banner, rec.Body.String())
}

func TestFrames_Success(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.result = verdictResult()

	req := httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(
		`{"frames":["a","b"],"source":"extension","batch_info":"1/3","dimensions":{"w":640},"facial_frames":2}`))
	req.Header.Set("X-Request-ID", "req-42")
	rec := fx.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["deepfake"])
	assert.Equal(t, 0.6, body["confidence"])
	assert.Equal(t, 8.0, body["deepfake_frames"])
	assert.Equal(t, 10.0, body["frames_analyzed"])
	assert.Equal(t, []any{"a", "b"}, body["frameIds"])
	assert.Equal(t, "req-42", body["request_id"])
	assert.Equal(t, "success", body["status"])
	assert.Regexp(t, `^\d+\.\d{2}s$`, body["processing_time"])

	assert.Equal(t, []string{"a", "b"}, fx.analyzer.batch.Frames)
	assert.Equal(t, "extension", fx.analyzer.batch.Source)
	assert.Equal(t, "1/3", fx.analyzer.batch.BatchInfo)
	assert.Equal(t, 2, fx.analyzer.batch.FacialFrames)
}

func TestFrames_DefaultRequestIDAndEmptyIDs(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.result = verdictResult()
	fx.analyzer.result.RetainedFrameIDs = nil

	rec := fx.do(httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(`{"frames":["a"]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unknown", fx.analyzer.batch.RequestID)
	assert.Equal(t, []any{}, body["frameIds"])
}

func TestFrames_ExpectedFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"no input", analysis.ErrNoInput, http.StatusOK, "No frames provided"},
		{"nothing decodable", analysis.ErrNoFramesAnalyzed, http.StatusOK, "No frames could be analyzed"},
		{"timeout", analysis.ErrAnalysisTimeout, http.StatusServiceUnavailable, "Analysis timed out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.analyzer.err = fmt.Errorf("wrapped: %w", tc.err)

			rec := fx.do(httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(`{"frames":[]}`)))

			require.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tc.msg, body["error"])
			assert.Equal(t, "error", body["status"])
			assert.NotContains(t, body, "deepfake")
			assert.NotContains(t, body, "frameIds")
		})
	}
}

func TestFrames_InternalError(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.err = errors.New("boom")

	rec := fx.do(httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(`{"frames":["a"]}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestFrames_InvalidJSON(t *testing.T) {
	for _, raw := range []string{`{"frames":`, `not json`, `{"frames":"abc"}`} {
		t.Run(raw, func(t *testing.T) {
			fx := newFixture(t)
			req := httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(raw))
			req.Header.Set("X-Request-ID", "bad-1")
			rec := fx.do(req)

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "Invalid JSON body", body["error"])
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, "bad-1", body["request_id"])
			assert.Regexp(t, `^\d+\.\d{2}s$`, body["processing_time"])
			assert.Nil(t, fx.analyzer.batch.Frames)
		})
	}
}

func TestFrames_NonStringEntriesFailIndividually(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.result = verdictResult()

	rec := fx.do(httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(
		`{"frames":["iVBORw0KGgo=", null, 42, {"x":1}, "b"],"source":7}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeBody(t, rec)["status"])
	assert.Equal(t, []string{"iVBORw0KGgo=", "", "", "", "b"}, fx.analyzer.batch.Frames)
	assert.Equal(t, "7", fx.analyzer.batch.Source)
}

func multipartRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_Success(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.result = verdictResult()

	req := multipartRequest(t, "file", []byte("video-bytes"))
	req.Header.Set("X-Request-ID", "up-1")
	rec := fx.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("video-bytes"), fx.analyzer.uploaded)
	assert.Equal(t, "up-1", fx.analyzer.reqID)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["deepfake"])
	assert.Equal(t, []any{"a", "b"}, body["frameIds"])
}

func TestUpload_NoFile(t *testing.T) {
	cases := []struct {
		name  string
		build func(t *testing.T) *http.Request
	}{
		{"wrong field", func(t *testing.T) *http.Request { return multipartRequest(t, "video", []byte("x")) }},
		{"empty file", func(t *testing.T) *http.Request { return multipartRequest(t, "file", nil) }},
		{"not multipart", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/", strings.NewReader("raw"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)

			rec := fx.do(tc.build(t))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "No file uploaded", body["error"])
			assert.Nil(t, fx.analyzer.uploaded)
		})
	}
}

func TestUpload_UnreadableVideo(t *testing.T) {
	fx := newFixture(t)
	fx.analyzer.err = analysis.ErrUnreadableVideo

	rec := fx.do(multipartRequest(t, "file", []byte("garbage")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cannot read video file", decodeBody(t, rec)["error"])
}

func TestUpload_TooLarge(t *testing.T) {
	fx := newFixture(t)
	fx.handler = NewRouter(fx.analyzer, fx.evidence, fx.feedback, Options{MaxUploadBytes: 64})

	rec := fx.do(multipartRequest(t, "file", bytes.Repeat([]byte("x"), 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestFeedback_Submit(t *testing.T) {
	fx := newFixture(t)
	payload := `{"wasCorrect":false,"userCorrection":true,"frameIds":["a"]}`

	rec := fx.do(httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "feedback_id": "fb-1"}, decodeBody(t, rec))
	assert.JSONEq(t, payload, string(fx.feedback.submitted))
}

func TestFeedback_SubmitFailures(t *testing.T) {
	fx := newFixture(t)
	fx.feedback.err = fmt.Errorf("%w: disk full", feedback.ErrStorage)
	rec := fx.do(httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	fx.feedback.err = fmt.Errorf("%w: not an object", feedback.ErrValidation)
	rec = fx.do(httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`[1]`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestFeedback_List(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/feedback?page=0&page_size=5000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fx.feedback.page)
	assert.Equal(t, 200, fx.feedback.pageSize)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["data"])
}

func TestEvidence_Get(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/evidence/"+knownFrameID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, knownFrameID, body["id"])
	assert.Equal(t, 0.42, body["prediction"])

	rec = fx.do(httptest.NewRequest(http.MethodGet, "/evidence/00000000-0000-0000-0000-000000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(httptest.NewRequest(http.MethodGet, "/evidence/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvidence_Image(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/evidence/"+knownFrameID+"/image", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	fx := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/frames", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Request-ID")

	rec := fx.do(req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthEndpoints(t *testing.T) {
	fx := newFixture(t)
	assert.Equal(t, http.StatusOK, fx.do(httptest.NewRequest(http.MethodGet, "/live", nil)).Code)
	assert.Equal(t, http.StatusOK, fx.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusOK, fx.do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
	assert.Equal(t, http.StatusOK, fx.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
}
