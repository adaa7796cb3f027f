package model

// GenerateRequest is the body of POST /generate-image.
type GenerateRequest struct {
	Prompt         string `json:"prompt" validate:"required"`
	NegativePrompt string `json:"negative_prompt"`
}

// GenerateResponse reports a finished generation.
type GenerateResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ImagePath string `json:"image_path,omitempty"`
	PromptID  string `json:"prompt_id,omitempty"`
}

// HealthResponse reports upstream reachability. Always served with 200.
type HealthResponse struct {
	Status   string `json:"status"`
	ComfyUI  string `json:"comfy_ui"`
	ComfyURL string `json:"comfy_url"`
	Error    string `json:"error,omitempty"`
}

// BannerResponse is the GET / service banner.
type BannerResponse struct {
	Message   string            `json:"message"`
	ComfyURL  string            `json:"comfy_url"`
	Endpoints map[string]string `json:"endpoints"`
}
