package comfy

import "encoding/json"

// promptRequest is the body of POST /prompt.
type promptRequest struct {
	Prompt map[string]interface{} `json:"prompt"`
}

// PromptResponse acknowledges a queued workflow.
type PromptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors,omitempty"`
}

// History maps prompt id to its recorded execution.
type History map[string]HistoryEntry

// HistoryEntry holds the outputs recorded for one finished prompt.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  *ExecutionStatus      `json:"status,omitempty"`
}

// NodeOutput lists the artifacts one node produced.
type NodeOutput struct {
	Images []ImageRef `json:"images,omitempty"`
}

// ImageRef locates a rendered image on the upstream host.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ExecutionStatus summarizes how a prompt finished.
type ExecutionStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// Event stream frames. Every frame carries a type tag plus a tag-specific
// payload; frames for other jobs share the same connection.
type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// executingData announces the node currently running for a prompt. A null
// node means the prompt's execution queue is empty.
type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type executionErrorData struct {
	PromptID string `json:"prompt_id"`
}

type progressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
}
