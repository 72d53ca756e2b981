package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGen struct {
	mu      sync.Mutex
	prompts []string
	params  []granite.Params
	text    string
	err     error
}

func (f *fakeGen) Generate(_ context.Context, prompt string, params granite.Params) (*granite.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &granite.Result{Text: f.text, Model: "ibm/granite-test"}, nil
}

func (f *fakeGen) ModelID() string   { return "ibm/granite-test" }
func (f *fakeGen) ProjectID() string { return "proj-1" }

func (f *fakeGen) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type harness struct {
	cfg     Config
	gen     *fakeGen
	handler http.Handler
}

func newHarness(t *testing.T, gen *fakeGen) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Port:           "0",
		UploadDir:      filepath.Join(dir, "uploads"),
		GeneratedDir:   filepath.Join(dir, "generated"),
		MaxUploadBytes: 64 << 10,
	}
	store, err := NewStore(cfg.UploadDir, cfg.GeneratedDir)
	require.NoError(t, err)
	svc := New(cfg, gen, store, metrics.New("specgen"), nil)
	return &harness{cfg: cfg, gen: gen, handler: svc.Handler()}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

const petStore = `openapi: 3.0.0
info:
  title: Pet Store
  version: "1.0"
paths:
  /pets:
    get:
      responses:
        "200":
          description: ok
`

func TestGenerate_PetStore(t *testing.T) {
	gen := &fakeGen{text: "public class PetStoreApiTest {}"}
	h := newHarness(t, gen)

	rec := h.do(uploadRequest(t, "file", "petstore.yaml", []byte(petStore)))
	require.Equal(t, 200, rec.Code, rec.Body.String())

	b := body(t, rec)
	assert.Equal(t, true, b["success"])
	assert.Equal(t, "public class PetStoreApiTest {}", b["test_cases"])
	assert.Equal(t, "Pet_Store_Tests.java", b["filename"])
	assert.Equal(t, "Pet Store", b["api_title"])
	assert.Equal(t, float64(1), b["endpoints_count"])

	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "GET /pets")
	assert.Contains(t, gen.prompts[0], "Parameters: None")
	assert.Equal(t, granite.SpecParams(), gen.params[0])

	written, err := os.ReadFile(filepath.Join(h.cfg.GeneratedDir, "Pet_Store_Tests.java"))
	require.NoError(t, err)
	assert.Equal(t, "public class PetStoreApiTest {}", string(written))
	assert.Empty(t, dirEntries(t, h.cfg.UploadDir))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGenerate_RejectsExtensionBeforeParsing(t *testing.T) {
	gen := &fakeGen{text: "x"}
	h := newHarness(t, gen)

	rec := h.do(uploadRequest(t, "file", "spec.txt", []byte(petStore)))
	assert.Equal(t, 400, rec.Code)
	b := body(t, rec)
	assert.Equal(t, false, b["success"])
	assert.Equal(t, "Invalid file type. Please upload JSON, YAML, or YML files.", b["error"])
	assert.Equal(t, string(apierr.Validation), b["kind"])

	assert.Zero(t, gen.calls())
	assert.Empty(t, dirEntries(t, h.cfg.UploadDir))
	assert.Empty(t, dirEntries(t, h.cfg.GeneratedDir))
}

func TestGenerate_InferenceFailureWritesNothing(t *testing.T) {
	gen := &fakeGen{err: apierr.New(apierr.Inference, "watsonx.ai returned 503")}
	h := newHarness(t, gen)

	rec := h.do(uploadRequest(t, "file", "petstore.yml", []byte(petStore)))
	assert.GreaterOrEqual(t, rec.Code, 400)
	b := body(t, rec)
	assert.Equal(t, false, b["success"])
	assert.Equal(t, string(apierr.Inference), b["kind"])
	assert.Contains(t, b["error"], "503")

	assert.Empty(t, dirEntries(t, h.cfg.GeneratedDir))
	assert.Empty(t, dirEntries(t, h.cfg.UploadDir))
}

func TestGenerate_ParseFailure(t *testing.T) {
	gen := &fakeGen{text: "x"}
	h := newHarness(t, gen)

	rec := h.do(uploadRequest(t, "file", "broken.json", []byte(`{"openapi": `)))
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, string(apierr.Parse), body(t, rec)["kind"])
	assert.Zero(t, gen.calls())
	assert.Empty(t, dirEntries(t, h.cfg.UploadDir))
}

func TestGenerate_DebugDetails(t *testing.T) {
	gen := &fakeGen{text: "x"}
	h := newHarness(t, gen)
	h.cfg.Debug = true
	store, err := NewStore(h.cfg.UploadDir, h.cfg.GeneratedDir)
	require.NoError(t, err)
	h.handler = New(h.cfg, gen, store, metrics.New("specgen"), nil).Handler()

	rec := h.do(uploadRequest(t, "file", "broken.yaml", []byte("openapi: [3.0")))
	b := body(t, rec)
	assert.NotEmpty(t, b["details"])
}

func TestGenerate_MissingFile(t *testing.T) {
	h := newHarness(t, &fakeGen{})

	rec := h.do(uploadRequest(t, "other", "petstore.yaml", []byte(petStore)))
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "No file uploaded", body(t, rec)["error"])

	rec = h.do(uploadRequest(t, "file", "", []byte(petStore)))
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "No file selected", body(t, rec)["error"])

	rec = h.do(httptest.NewRequest("POST", "/generate", strings.NewReader("file=x")))
	assert.Equal(t, 400, rec.Code)
}

func TestGenerate_TooLarge(t *testing.T) {
	gen := &fakeGen{text: "x"}
	h := newHarness(t, gen)

	big := bytes.Repeat([]byte("a"), int(h.cfg.MaxUploadBytes)+1024)
	rec := h.do(uploadRequest(t, "file", "big.yaml", big))
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, string(apierr.Validation), body(t, rec)["kind"])
	assert.Zero(t, gen.calls())
}

func TestDownload(t *testing.T) {
	h := newHarness(t, &fakeGen{text: "class T {}"})
	require.Equal(t, 200, h.do(uploadRequest(t, "file", "petstore.yaml", []byte(petStore))).Code)

	rec := h.do(httptest.NewRequest("GET", "/download/Pet_Store_Tests.java", nil))
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "class T {}", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Pet_Store_Tests.java")

	rec = h.do(httptest.NewRequest("GET", "/download/Missing_Tests.java", nil))
	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, string(apierr.NotFound), body(t, rec)["kind"])
}

func TestHealth(t *testing.T) {
	gen := &fakeGen{text: "  OK  "}
	h := newHarness(t, gen)

	rec := h.do(httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, rec.Code)
	b := body(t, rec)
	assert.Equal(t, "healthy", b["status"])
	assert.Equal(t, "ibm/granite-test", b["model"])
	assert.Equal(t, "proj-1", b["project_id"])
	assert.Equal(t, "OK", b["test_response"])
	assert.Equal(t, granite.ProbeParams(), gen.params[0])
}

func TestHealth_CapsResponse(t *testing.T) {
	h := newHarness(t, &fakeGen{text: strings.Repeat("é", 500)})

	b := body(t, h.do(httptest.NewRequest("GET", "/health", nil)))
	assert.Equal(t, 200, len([]rune(b["test_response"].(string))))
}

func TestHealth_Unhealthy(t *testing.T) {
	h := newHarness(t, &fakeGen{err: apierr.New(apierr.Auth, "failed to get access token")})

	rec := h.do(httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 500, rec.Code)
	b := body(t, rec)
	assert.Equal(t, "unhealthy", b["status"])
	assert.Equal(t, "failed to get access token", b["error"])
}

func TestIndexAndMetrics(t *testing.T) {
	h := newHarness(t, &fakeGen{text: "x"})

	rec := h.do(httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "uploadForm")

	h.do(uploadRequest(t, "file", "petstore.yaml", []byte(petStore)))
	rec = h.do(httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `testgen_generations_total{kind="",outcome="success",service="specgen",source="spec"} 1`)
	assert.Contains(t, rec.Body.String(), `path="POST /generate"`)
}
