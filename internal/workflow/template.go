package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/comfybridge/api/internal/model"
)

// Graph is a workflow in the upstream API format: node id to node
// descriptor. It is kept as raw decoded JSON so fields the mutator does not
// know about survive the submit round-trip unchanged.
type Graph map[string]interface{}

// Load reads a workflow template from disk. The file is read fresh on every
// call; each caller gets an independent graph to mutate.
func Load(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewConfigurationError(
			fmt.Sprintf("Workflow file not found: %s. Please place your workflow_api.json in the project root.", path), err)
	}

	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, model.NewConfigurationError("Invalid workflow JSON file", err)
	}
	return g, nil
}
