package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/output"
	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
	"github.com/bryanchriswhite/FocusRecorder/internal/window"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreen struct{}

func (fakeScreen) Bounds() image.Rectangle { return image.Rect(0, 0, 16, 16) }

func (s fakeScreen) Platform() capture.Platform {
	return capture.Platform{Grabber: s}
}

func (fakeScreen) Grab(region image.Rectangle, dst []byte, stride int) error {
	for i := range dst {
		dst[i] = 0x80
	}
	return nil
}

type fixture struct {
	server  *Server
	configs *config.Manager
	session *recorder.Session
	preview *output.MJPEGOutput
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	configs, err := config.NewManager(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, configs.Set("capture.cache_dir", filepath.Join(dir, "cache")))
	require.NoError(t, configs.Set("capture.frame_rate", "50"))

	cc, err := configs.Get().CaptureConfig()
	require.NoError(t, err)
	preview := output.NewMJPEGOutput(output.Config{FPS: 5})
	require.NoError(t, preview.Start())
	session, err := recorder.NewSession(recorder.Options{
		Config:  cc,
		Screen:  fakeScreen{},
		Preview: preview,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Discard()
		preview.Stop()
	})

	return &fixture{
		server:  NewServer(session, configs, preview),
		configs: configs,
		session: session,
		preview: preview,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeProgress(t *testing.T, rec *httptest.ResponseRecorder) recorder.Progress {
	t.Helper()
	var p recorder.Progress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = f.do("OPTIONS", "/api/recording/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do("GET", "/api/recording/status", "")
	assert.Equal(t, recorder.StatusIdle, decodeProgress(t, rec).Status)

	rec = f.do("POST", "/api/recording/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do("POST", "/api/recording/start", `{"automatic": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeProgress(t, rec)
	assert.Equal(t, recorder.StatusRecording, p.Status)
	assert.Equal(t, "manual", p.Frequency)

	rec = f.do("POST", "/api/recording/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do("POST", "/api/recording/snap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return f.session.Progress().FrameCount == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.preview.Stats().Frames == 1 }, time.Second, time.Millisecond)

	rec = f.do("POST", "/api/recording/pause", "")
	assert.Equal(t, recorder.StatusPaused, decodeProgress(t, rec).Status)
	rec = f.do("POST", "/api/recording/resume", "")
	assert.Equal(t, recorder.StatusRecording, decodeProgress(t, rec).Status)

	rec = f.do("POST", "/api/recording/stop", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stopped stopResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stopped))
	assert.Equal(t, recorder.StatusStopped, stopped.Status)
	assert.Equal(t, uint64(1), stopped.FrameCount)
	assert.NotEmpty(t, stopped.Project, "converted on stop by default")
	assert.Empty(t, stopped.Recording)

	rec = f.do("POST", "/api/recording/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/recording/start", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/recording/start", `{"delay_ms": -5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/recording/start", `{"region": "1,2"}`).Code)

	rec := f.do("POST", "/api/recording/start", `{"region": "100,100,10,10"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = f.do("POST", "/api/recording/start", `{"delay_ms": 60000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, recorder.StatusPending, decodeProgress(t, rec).Status)

	rec = f.do("POST", "/api/recording/snap", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do("POST", "/api/recording/discard", "")
	assert.Equal(t, recorder.StatusIdle, decodeProgress(t, rec).Status)
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do("GET", "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg config.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, 50, cfg.Capture.FrameRate)

	cfg.Capture.Frequency = "per_minute"
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	rec = f.do("PUT", "/api/config", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "per_minute", f.configs.Get().Capture.Frequency)

	rec = f.do("POST", "/api/recording/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "per_minute", decodeProgress(t, rec).Frequency)

	cfg.Capture.Frequency = "fortnightly"
	body, err = json.Marshal(cfg)
	require.NoError(t, err)
	rec = f.do("PUT", "/api/config", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "per_minute", f.configs.Get().Capture.Frequency)

	rec = f.do("PUT", "/api/config", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/recording/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var p recorder.Progress
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, recorder.StatusIdle, p.Status)

	resp, err := http.Post(srv.URL+"/api/recording/start", "application/json", bytes.NewBufferString(`{"automatic": false}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, recorder.StatusRecording, p.Status)
}

func TestPreviewRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do("GET", "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/recording/progress")

	rec = f.do("GET", "/stream/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)
}

type fakeWindows []*window.Info

func (f fakeWindows) Focused() (*window.Info, error) { return f[0], nil }
func (f fakeWindows) List() ([]*window.Info, error)  { return f, nil }

func TestWindows(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusServiceUnavailable, f.do("GET", "/api/windows", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/recording/start", `{"window": "focused"}`).Code)

	f.server.SetWindowFinder(fakeWindows{
		{ID: 1, Title: "term", Class: "xterm", Bounds: image.Rect(0, 0, 8, 8)},
		{ID: 2, Title: "editor", Class: "code", Bounds: image.Rect(8, 8, 24, 24)},
	})

	rec := f.do("GET", "/api/windows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var windows []window.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&windows))
	assert.Len(t, windows, 2)

	assert.Equal(t, http.StatusNotFound, f.do("POST", "/api/recording/start", `{"window": "browser"}`).Code)

	rec = f.do("POST", "/api/recording/start", `{"window": "editor", "automatic": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res, err := f.session.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(8), res.Recording.Width, "clipped to the screen")
	assert.Equal(t, uint16(8), res.Recording.Height)
}
