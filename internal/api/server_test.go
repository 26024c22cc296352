package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/adapters/tabular"
	"gostudio/app"
	"gostudio/domain/core"
	"gostudio/domain/ranking"
	studio "gostudio/domain/session"
	"gostudio/internal/session"
	"gostudio/internal/testkit"
)

type response struct {
	ID         core.SessionID       `json:"id"`
	Phase      studio.Phase         `json:"phase"`
	Path       []studio.Phase       `json:"path"`
	Errors     []studio.ErrorRecord `json:"errors"`
	Transcript []studio.Message     `json:"transcript"`
	Terminated bool                 `json:"terminated"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc, err := app.NewStudioService(app.Dependencies{
		Sessions: session.NewManager(testkit.NewInMemorySessionStore(), time.Hour),
		Loader:   tabular.NewLoader(),
	}, app.Settings{Weights: ranking.DefaultWeights()})
	require.NoError(t, err)
	return NewServer(svc, nil, gin.TestMode)
}

func customersCSV(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tbl := testkit.NewCustomerDataGenerator(testkit.DefaultCustomerConfig()).Generate()
	require.NoError(t, testkit.WriteCSV(&buf, tbl))
	return buf.Bytes()
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func do(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createWithUpload(t *testing.T, s *Server, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, name, content)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_DriverWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := createWithUpload(t, s, "customers.csv", customersCSV(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[response](t, rec)
	assert.Equal(t, studio.PhaseDataUploaded, created.Phase)
	base := "/api/sessions/" + created.ID.String()

	rec = do(t, s, http.MethodPost, base+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, studio.PhaseWaitingForIntent, decode[response](t, rec).Phase)

	rec = do(t, s, http.MethodPost, base+"/goal", `{"goal":"What drives revenue?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answered := decode[response](t, rec)
	assert.Equal(t, studio.PhaseAnswerReady, answered.Phase)
	assert.Equal(t, studio.PhaseAnswerReady, answered.Path[len(answered.Path)-1])
	assert.NotEmpty(t, answered.Transcript)

	rec = do(t, s, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, studio.PhaseAnswerReady, decode[response](t, rec).Phase)

	rec = do(t, s, http.MethodPost, base+"/phase", `{"phase":"WAITING_FOR_INTENT"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, studio.PhaseWaitingForIntent, decode[response](t, rec).Phase)

	rec = do(t, s, http.MethodPost, base+"/phase", `{"phase":"LANDING"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, studio.PhaseLanding, decode[response](t, rec).Phase)

	rec = do(t, s, http.MethodPost, base+"/phase", `{"phase":"ANSWER_READY"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.KindNotFound, decode[errorBody](t, rec).Kind)
}

func TestServer_CreateWithoutFileThenUpload(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[response](t, rec)
	assert.Equal(t, studio.PhaseLanding, created.Phase)

	body, contentType := multipartBody(t, "customers.csv", customersCSV(t))
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+created.ID.String()+"/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, studio.PhaseDataUploaded, decode[response](t, rec).Phase)
}

func TestServer_CorruptedUpload(t *testing.T) {
	s := newTestServer(t)

	rec := createWithUpload(t, s, "broken.csv", []byte(""))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, core.KindCorruptedUpload, decode[errorBody](t, rec).Kind)
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/sessions/" + decode[response](t, rec).ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"malformed id", http.MethodGet, "/api/sessions/not-a-uuid", "", http.StatusBadRequest, kindBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/" + core.NewSessionID().String(), "", http.StatusNotFound, core.KindNotFound},
		{"goal before upload", http.MethodPost, base + "/goal", `{"goal":"What drives revenue?"}`, http.StatusConflict, core.KindInvalidTransition},
		{"missing goal", http.MethodPost, base + "/goal", `{}`, http.StatusBadRequest, kindBadRequest},
		{"unknown phase", http.MethodPost, base + "/phase", `{"phase":"NOWHERE"}`, http.StatusBadRequest, kindBadRequest},
		{"start without upload", http.MethodPost, base + "/start", "", http.StatusConflict, core.KindInvalidTransition},
		{"upload without file", http.MethodPost, base + "/upload", "", http.StatusBadRequest, kindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[errorBody](t, rec).Kind)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGone, statusFor(core.KindSessionTerminated))
	assert.Equal(t, http.StatusConflict, statusFor(core.KindStaleSolution))
	assert.Equal(t, http.StatusInternalServerError, statusFor("something_new"))
}
