package e2e

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestGenerateImage_Success(t *testing.T) {
	ta := setupApp(t)

	body := `{"prompt": "a red fox in the snow", "negative_prompt": "blurry, low quality"}`
	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "success" {
		t.Errorf("status = %v, want success", result["status"])
	}
	if result["message"] != "Image generated successfully" {
		t.Errorf("message = %v", result["message"])
	}
	if result["prompt_id"] != ta.stub.promptID {
		t.Errorf("prompt_id = %v, want %s", result["prompt_id"], ta.stub.promptID)
	}

	imagePath, _ := result["image_path"].(string)
	if !strings.HasSuffix(imagePath, ta.stub.promptID+"_fox.png") {
		t.Errorf("image_path = %q, want it to follow the promptID_filename convention", imagePath)
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		t.Fatalf("stored image missing: %v", err)
	}
	if string(data) != string(ta.stub.imageData) {
		t.Error("stored image bytes differ from the upstream artifact")
	}

	// The submitted workflow carries the injected prompts and a fresh seed.
	graph := ta.stub.capturedGraph()
	if graph == nil {
		t.Fatal("stub never received a workflow")
	}
	positive := graph["6"].(map[string]interface{})["inputs"].(map[string]interface{})["text"]
	if positive != "a red fox in the snow" {
		t.Errorf("positive prompt = %v", positive)
	}
	negative := graph["7"].(map[string]interface{})["inputs"].(map[string]interface{})["text"]
	if negative != "blurry, low quality" {
		t.Errorf("negative prompt = %v", negative)
	}
	seed, ok := graph["3"].(map[string]interface{})["inputs"].(map[string]interface{})["seed"].(float64)
	if !ok {
		t.Fatal("submitted sampler has no numeric seed")
	}
	if seed == 156680208700286 {
		t.Error("sampler seed was not randomized")
	}
	if seed < 0 || seed >= 1<<32 {
		t.Errorf("seed = %v, want a 32-bit value", seed)
	}
}

func TestGenerateImage_MissingPrompt(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"negative_prompt": "blurry"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, parseJSON(t, resp), "VALIDATION_ERROR")
}

func TestGenerateImage_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", "not json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, parseJSON(t, resp), "VALIDATION_ERROR")
}

func TestGenerateImage_WorkflowMissing(t *testing.T) {
	ta := setupApp(t)
	if err := os.Remove(ta.workflowPath); err != nil {
		t.Fatalf("failed to remove workflow: %v", err)
	}

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "CONFIGURATION_ERROR")
	errObj := result["error"].(map[string]interface{})
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "Workflow file not found") {
		t.Errorf("message = %q", msg)
	}
}

func TestGenerateImage_UpstreamDown(t *testing.T) {
	ta := setupApp(t)
	ta.stub.srv.Close()

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusServiceUnavailable)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "SERVICE_UNAVAILABLE")
	errObj := result["error"].(map[string]interface{})
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "Failed to connect to ComfyUI at") {
		t.Errorf("message = %q", msg)
	}
}

func TestGenerateImage_NoPromptID(t *testing.T) {
	ta := setupApp(t)
	ta.stub.queueResponse = `{}`

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "SERVICE_ERROR")
	errObj := result["error"].(map[string]interface{})
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "No prompt_id returned from ComfyUI") {
		t.Errorf("message = %q", msg)
	}
}

func TestGenerateImage_ExecutionError(t *testing.T) {
	ta := setupApp(t)
	ta.stub.events = []string{
		fmt.Sprintf(`{"type":"executing","data":{"node":"3","prompt_id":%q}}`, ta.stub.promptID),
		fmt.Sprintf(`{"type":"execution_error","data":{"prompt_id":%q,"node_type":"KSampler","exception_message":"CUDA out of memory"}}`, ta.stub.promptID),
	}

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "EXECUTION_ERROR")
	errObj := result["error"].(map[string]interface{})
	msg, _ := errObj["message"].(string)
	if !strings.Contains(msg, "ComfyUI execution error") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "CUDA out of memory") {
		t.Errorf("message = %q, want the upstream detail", msg)
	}
	if errObj["details"] == nil {
		t.Error("expected the raw upstream payload in details")
	}
}

func TestGenerateImage_WatchTimeout(t *testing.T) {
	ta := setupAppWithWatch(t, 1)
	ta.stub.events = []string{
		fmt.Sprintf(`{"type":"executing","data":{"node":"3","prompt_id":%q}}`, ta.stub.promptID),
	}

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusGatewayTimeout)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "TIMEOUT")
	errObj := result["error"].(map[string]interface{})
	if errObj["message"] != "Timeout waiting for image generation" {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestGenerateImage_PromptMissingFromHistory(t *testing.T) {
	ta := setupApp(t)
	ta.stub.history = `{}`

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "NOT_FOUND")
	errObj := result["error"].(map[string]interface{})
	if errObj["message"] != "Prompt ID not found in history" {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestGenerateImage_NoOutputImages(t *testing.T) {
	ta := setupApp(t)
	ta.stub.history = fmt.Sprintf(`{%q: {"outputs": {"9": {"images": []}}}}`, ta.stub.promptID)

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "NOT_FOUND")
	errObj := result["error"].(map[string]interface{})
	if errObj["message"] != "No output images found" {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestGenerateImage_NoFilenameInOutput(t *testing.T) {
	ta := setupApp(t)
	ta.stub.history = fmt.Sprintf(`{%q: {"outputs": {"9": {"images": [{"filename": "", "subfolder": "", "type": "output"}]}}}}`, ta.stub.promptID)

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "SERVICE_ERROR")
	errObj := result["error"].(map[string]interface{})
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "No filename in output") {
		t.Errorf("message = %q", msg)
	}
}
