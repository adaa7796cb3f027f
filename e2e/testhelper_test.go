package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/comfybridge/api/internal/comfy"
	"github.com/comfybridge/api/internal/config"
	"github.com/comfybridge/api/internal/handler"
	"github.com/comfybridge/api/internal/middleware"
	"github.com/comfybridge/api/internal/service"
	"github.com/comfybridge/api/internal/storage"
	ws "github.com/comfybridge/api/internal/websocket"
)

// defaultTemplate is the workflow each test app starts from. Node 6 carries
// the positive placeholder, node 7 the negative one, node 3 the sampler.
const defaultTemplate = `{
	"3": {
		"class_type": "KSampler",
		"inputs": {"seed": 156680208700286, "steps": 20, "cfg": 8}
	},
	"4": {
		"class_type": "CheckpointLoaderSimple",
		"inputs": {"ckpt_name": "v1-5-pruned-emaonly.safetensors"}
	},
	"6": {
		"class_type": "CLIPTextEncode",
		"inputs": {"text": "beautiful scenery nature glass bottle"}
	},
	"7": {
		"class_type": "CLIPTextEncode",
		"inputs": {"text": "text, watermark, bad hands"}
	},
	"9": {
		"class_type": "SaveImage",
		"inputs": {"filename_prefix": "ComfyUI"}
	}
}`

// comfyStub plays the upstream ComfyUI server: prompt queue, event stream,
// history and artifact download. Tests adjust its fields before issuing
// requests to steer each endpoint.
type comfyStub struct {
	t   *testing.T
	srv *httptest.Server

	promptID      string
	queueStatus   int    // 0 means 200
	queueResponse string // raw body override for the queue ack
	history       string // raw body override for history lookups
	imageData     []byte
	healthy       bool
	events        []string // raw stream frames; nil means a clean completion

	mu        sync.Mutex
	lastGraph map[string]interface{}
}

func newComfyStub(t *testing.T) *comfyStub {
	t.Helper()
	s := &comfyStub{
		t:         t,
		promptID:  "e2e-prompt-1",
		imageData: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
		healthy:   true,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *comfyStub) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/prompt":
		s.handleQueue(w, r)
	case r.URL.Path == "/ws":
		s.handleStream(w, r)
	case strings.HasPrefix(r.URL.Path, "/history/"):
		s.handleHistory(w)
	case r.URL.Path == "/view":
		w.Write(s.imageData)
	case r.URL.Path == "/system_stats":
		if !s.healthy {
			http.Error(w, "ComfyUI is down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"system": {}}`))
	default:
		http.NotFound(w, r)
	}
}

func (s *comfyStub) handleQueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt map[string]interface{} `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.t.Errorf("stub failed to decode submitted workflow: %v", err)
	}
	s.mu.Lock()
	s.lastGraph = body.Prompt
	s.mu.Unlock()

	if s.queueStatus != 0 {
		w.WriteHeader(s.queueStatus)
	}
	if s.queueResponse != "" {
		w.Write([]byte(s.queueResponse))
		return
	}
	fmt.Fprintf(w, `{"prompt_id": %q, "number": 1}`, s.promptID)
}

func (s *comfyStub) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("stub upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events := s.events
	if events == nil {
		events = []string{
			fmt.Sprintf(`{"type":"executing","data":{"node":"3","prompt_id":%q}}`, s.promptID),
			fmt.Sprintf(`{"type":"progress","data":{"value":20,"max":20,"prompt_id":%q}}`, s.promptID),
			fmt.Sprintf(`{"type":"executing","data":{"node":null,"prompt_id":%q}}`, s.promptID),
		}
	}
	for _, event := range events {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
			return
		}
	}

	// Hold the stream open until the bridge hangs up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *comfyStub) handleHistory(w http.ResponseWriter) {
	if s.history != "" {
		w.Write([]byte(s.history))
		return
	}
	fmt.Fprintf(w, `{%q: {"outputs": {"9": {"images": [{"filename": "fox.png", "subfolder": "", "type": "output"}]}}}}`, s.promptID)
}

// capturedGraph returns the workflow the stub last received on its queue.
func (s *comfyStub) capturedGraph() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGraph
}

// testApp holds all components needed for testing
type testApp struct {
	app          *fiber.App
	stub         *comfyStub
	registry     *service.JobRegistry
	outputDir    string
	workflowPath string
}

// setupApp creates a Fiber app wired like main.go, but pointed at a stubbed
// upstream and a temporary artifact directory.
func setupApp(t *testing.T) *testApp {
	return setupAppWithWatch(t, 5)
}

func setupAppWithWatch(t *testing.T, watchSeconds int) *testApp {
	t.Helper()

	stub := newComfyStub(t)

	workflowPath := filepath.Join(t.TempDir(), "workflow_api.json")
	if err := os.WriteFile(workflowPath, []byte(defaultTemplate), 0o644); err != nil {
		t.Fatalf("failed to write workflow template: %v", err)
	}

	comfyClient := comfy.NewClient(&config.ComfyConfig{
		URL:             stub.srv.URL,
		SubmitTimeout:   5,
		HistoryTimeout:  5,
		DownloadTimeout: 5,
		HealthTimeout:   2,
		WatchTimeout:    watchSeconds,
		ReceiveTimeout:  1,
	})

	outputDir := t.TempDir()
	store, err := storage.NewArtifactStore(outputDir)
	if err != nil {
		t.Fatalf("failed to create artifact store: %v", err)
	}

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	registry := service.NewJobRegistry(time.Hour, 100)
	generateService := service.NewGenerateService(comfyClient, store, registry, hub, workflowPath)

	generateHandler := handler.NewGenerateHandler(generateService, validate)
	healthHandler := handler.NewHealthHandler(generateService)
	jobsHandler := handler.NewJobsHandler(registry)

	// No redis in tests, so the limiter passes everything through.
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New()

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	app.Post("/generate-image", rateLimiter.GenerateLimit(10000), generateHandler.Generate)
	app.Get("/download/:promptId", generateHandler.Download)

	app.Get("/jobs", jobsHandler.List)
	app.Get("/jobs/:promptId", jobsHandler.Get)

	return &testApp{
		app:          app,
		stub:         stub,
		registry:     registry,
		outputDir:    outputDir,
		workflowPath: workflowPath,
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the code inside the error envelope.
func assertErrorCode(t *testing.T, result map[string]interface{}, expected string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an error envelope, got %v", result)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %s, got %v", expected, errObj["code"])
	}
}
