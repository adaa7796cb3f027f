package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

func TestJobs_ListAfterGenerate(t *testing.T) {
	ta := setupApp(t)
	generateOne(t, ta)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	jobs, ok := result["jobs"].([]interface{})
	if !ok || len(jobs) != 1 {
		t.Fatalf("jobs = %v, want one entry", result["jobs"])
	}

	job := jobs[0].(map[string]interface{})
	if job["prompt_id"] != ta.stub.promptID {
		t.Errorf("prompt_id = %v", job["prompt_id"])
	}
	if job["status"] != "succeeded" {
		t.Errorf("status = %v, want succeeded", job["status"])
	}
	if job["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", job["progress"])
	}
	if job["image_path"] == nil || job["image_path"] == "" {
		t.Error("expected image_path on a finished job")
	}
}

func TestJobs_EmptyList(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	jobs, ok := result["jobs"].([]interface{})
	if !ok {
		t.Fatalf("jobs = %v, want an array even when empty", result["jobs"])
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %v, want empty", jobs)
	}
}

func TestJobs_GetOne(t *testing.T) {
	ta := setupApp(t)
	generateOne(t, ta)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs/"+ta.stub.promptID, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "succeeded" {
		t.Errorf("status = %v, want succeeded", job["status"])
	}
	if job["current_step"] != "done" {
		t.Errorf("current_step = %v, want done", job["current_step"])
	}
	if job["completed_at"] == nil {
		t.Error("expected completed_at on a finished job")
	}
}

func TestJobs_GetUnknown(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs/nope", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	assertErrorCode(t, result, "NOT_FOUND")
	errObj := result["error"].(map[string]interface{})
	if errObj["message"] != "Job not found" {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestJobs_FailedJobRecorded(t *testing.T) {
	ta := setupApp(t)
	ta.stub.events = []string{
		fmt.Sprintf(`{"type":"execution_error","data":{"prompt_id":%q,"exception_message":"boom"}}`, ta.stub.promptID),
	}

	resp, err := doRequest(ta.app, http.MethodPost, "/generate-image", `{"prompt": "a fox"}`, nil)
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusInternalServerError)
	readBody(t, resp)

	resp, err = doRequest(ta.app, http.MethodGet, "/jobs/"+ta.stub.promptID, "", nil)
	if err != nil {
		t.Fatalf("jobs request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "failed" {
		t.Errorf("status = %v, want failed", job["status"])
	}
	errMsg, _ := job["error"].(string)
	if errMsg == "" {
		t.Fatal("expected the failure message on the job")
	}
}
