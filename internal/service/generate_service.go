package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/comfybridge/api/internal/comfy"
	"github.com/comfybridge/api/internal/model"
	"github.com/comfybridge/api/internal/storage"
	"github.com/comfybridge/api/internal/websocket"
	"github.com/comfybridge/api/internal/workflow"
	"github.com/comfybridge/api/pkg/response"
)

// GenerateService drives the full generation pipeline for one request:
// load template, inject prompts and seed, submit, watch for completion,
// then fetch and persist the result. Requests share nothing but the
// immutable collaborators below, so any number may run concurrently.
type GenerateService struct {
	client       *comfy.Client
	store        *storage.ArtifactStore
	registry     *JobRegistry
	hub          *websocket.Hub
	workflowPath string
}

func NewGenerateService(client *comfy.Client, store *storage.ArtifactStore, registry *JobRegistry, hub *websocket.Hub, workflowPath string) *GenerateService {
	return &GenerateService{
		client:       client,
		store:        store,
		registry:     registry,
		hub:          hub,
		workflowPath: workflowPath,
	}
}

// Generate runs the pipeline and blocks until the image is on disk or the
// attempt fails. Classified errors pass through untouched; anything else is
// wrapped before it reaches the caller.
func (s *GenerateService) Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	logrus.WithField("prompt", truncate(req.Prompt, 100)).Info("new image generation request")

	graph, err := workflow.Load(s.workflowPath)
	if err != nil {
		return nil, err
	}

	report := workflow.ApplyPrompts(graph, req.Prompt, req.NegativePrompt)
	if !report.Touched() {
		logrus.Warn("no CLIPTextEncode or KSampler nodes found in workflow")
	}

	promptID, err := s.client.QueuePrompt(ctx, graph)
	if err != nil {
		return nil, err
	}

	s.registry.Track(promptID)
	s.hub.BroadcastProgress(promptID, 0, model.JobStatusQueued, model.StepQueued)

	err = s.client.WaitForCompletion(ctx, promptID, func(p comfy.ProgressUpdate) {
		s.onProgress(promptID, p)
	})
	if err != nil {
		s.failJob(promptID, err)
		return nil, err
	}

	s.registry.UpdateProgress(promptID, 100, model.StepDownloading)
	s.hub.BroadcastProgress(promptID, 100, model.JobStatusRunning, model.StepDownloading)

	imagePath, err := s.fetchResult(ctx, promptID)
	if err != nil {
		s.failJob(promptID, err)
		return nil, err
	}

	s.registry.Complete(promptID, imagePath)

	resp := &model.GenerateResponse{
		Status:    "success",
		Message:   "Image generated successfully",
		ImagePath: imagePath,
		PromptID:  promptID,
	}
	s.hub.BroadcastComplete(promptID, resp)
	return resp, nil
}

// fetchResult resolves the artifact reference for a finished prompt,
// downloads it, and persists it under the {promptID}_{filename} convention.
func (s *GenerateService) fetchResult(ctx context.Context, promptID string) (string, error) {
	history, err := s.client.GetHistory(ctx, promptID)
	if err != nil {
		return "", err
	}

	entry, ok := history[promptID]
	if !ok {
		return "", model.NewNotFoundError("Prompt ID not found in history")
	}

	ref, ok := firstImage(entry)
	if !ok {
		return "", model.NewNotFoundError("No output images found")
	}
	if ref.Filename == "" {
		return "", model.NewInternalError("No filename in output", nil)
	}

	data, err := s.client.DownloadImage(ctx, ref)
	if err != nil {
		return "", err
	}

	path, err := s.store.Save(promptID, ref.Filename, bytes.NewReader(data))
	if err != nil {
		return "", model.NewInternalError(fmt.Sprintf("Unexpected error: %v", err), err)
	}

	logrus.Infof("image saved to %s", path)
	return path, nil
}

// firstImage returns the first image reference across the entry's outputs.
// Node ids are visited in sorted order so the pick is deterministic.
func firstImage(entry comfy.HistoryEntry) (comfy.ImageRef, bool) {
	ids := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if images := entry.Outputs[id].Images; len(images) > 0 {
			return images[0], true
		}
	}
	return comfy.ImageRef{}, false
}

// DownloadPath locates a previously stored artifact by prompt id.
func (s *GenerateService) DownloadPath(promptID string) (string, error) {
	return s.store.FindByPromptID(promptID)
}

// Health probes the upstream and reports reachability. It never fails;
// probe errors become part of the report.
func (s *GenerateService) Health(ctx context.Context) *model.HealthResponse {
	if err := s.client.HealthCheck(ctx); err != nil {
		return &model.HealthResponse{
			Status:   "unhealthy",
			ComfyUI:  "offline",
			ComfyURL: s.client.BaseURL(),
			Error:    err.Error(),
		}
	}
	return &model.HealthResponse{
		Status:   "healthy",
		ComfyUI:  "online",
		ComfyURL: s.client.BaseURL(),
	}
}

// ComfyURL returns the upstream base URL for informational responses.
func (s *GenerateService) ComfyURL() string {
	return s.client.BaseURL()
}

func (s *GenerateService) onProgress(promptID string, p comfy.ProgressUpdate) {
	progress := -1
	if p.Max > 0 {
		progress = p.Value * 100 / p.Max
	}

	step := ""
	if p.Node != "" {
		step = fmt.Sprintf("node %s", p.Node)
	} else if progress >= 0 {
		step = model.StepGenerating
	}

	job := s.registry.UpdateProgress(promptID, progress, step)
	if job != nil {
		s.hub.BroadcastProgress(promptID, job.Progress, job.Status, job.CurrentStep)
	}
}

func (s *GenerateService) failJob(promptID string, err error) {
	code := response.CodeServiceError
	if be, ok := model.AsBridgeError(err); ok {
		code = response.CodeFor(be.Kind)
	}
	s.registry.Fail(promptID, err.Error())
	s.hub.BroadcastError(promptID, code, err.Error())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
