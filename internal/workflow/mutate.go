package workflow

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Node class types recognized by the mutator.
const (
	classTextEncode = "CLIPTextEncode"
	classSampler    = "KSampler"
)

// PromptSlot is the role a text-encoding node plays in a template.
type PromptSlot int

const (
	SlotPositive PromptSlot = iota
	SlotNegative
)

// ClassifyPromptSlot decides which prompt a text node receives, based on the
// placeholder text baked into the template. Placeholders mentioning
// "negative" or "bad" mark the negative slot; everything else is positive.
// The convention is fragile: a template whose placeholders don't follow it
// gets its prompts misrouted.
func ClassifyPromptSlot(placeholder string) PromptSlot {
	lower := strings.ToLower(placeholder)
	if strings.Contains(lower, "negative") || strings.Contains(lower, "bad") {
		return SlotNegative
	}
	return SlotPositive
}

// MutationReport counts the nodes rewritten by ApplyPrompts.
type MutationReport struct {
	TextNodes    int
	SamplerNodes int
}

// Touched reports whether any node was rewritten.
func (r MutationReport) Touched() bool {
	return r.TextNodes > 0 || r.SamplerNodes > 0
}

// ApplyPrompts rewrites the graph in place: text-encoding nodes receive the
// positive or negative prompt according to their placeholder slot, sampler
// nodes get a fresh random seed. Node identifiers and all other fields stay
// untouched. A report with no rewrites is not an error; callers decide how
// loudly to warn.
func ApplyPrompts(g Graph, positive, negative string) MutationReport {
	var report MutationReport

	for id, v := range g {
		node, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		classType, _ := node["class_type"].(string)

		switch classType {
		case classTextEncode:
			inputs := nodeInputs(node)
			current, _ := inputs["text"].(string)
			if ClassifyPromptSlot(current) == SlotNegative {
				inputs["text"] = negative
				logrus.Debugf("set negative prompt in node %s", id)
			} else {
				inputs["text"] = positive
				logrus.Debugf("set positive prompt in node %s", id)
			}
			report.TextNodes++

		case classSampler:
			seed := randomSeed()
			nodeInputs(node)["seed"] = seed
			logrus.Debugf("randomized seed in node %s: %d", id, seed)
			report.SamplerNodes++
		}
	}

	return report
}

// nodeInputs returns the node's inputs map, attaching a fresh one when the
// template omits it.
func nodeInputs(node map[string]interface{}) map[string]interface{} {
	if inputs, ok := node["inputs"].(map[string]interface{}); ok {
		return inputs
	}
	inputs := map[string]interface{}{}
	node["inputs"] = inputs
	return inputs
}

// randomSeed draws a sampler seed from a crypto-sourced identifier, reduced
// into the unsigned 32-bit range.
func randomSeed() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[0:4])
}
