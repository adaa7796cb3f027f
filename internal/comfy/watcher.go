package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/comfybridge/api/internal/model"
)

// eventOutcome is what one received frame means for the watched job.
type eventOutcome int

const (
	outcomeUnrelated eventOutcome = iota
	outcomeStillRunning
	outcomeCompleted
	outcomeFailed
)

// classifyEvent decides the outcome of a single raw frame for the watched
// prompt id. Completion is specifically "watched prompt named, no active
// node"; an executing frame with a live node only confirms the job is still
// running. Frames for other jobs and undecodable frames are unrelated.
func classifyEvent(promptID string, raw []byte) (eventOutcome, json.RawMessage) {
	var evt wsEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return outcomeUnrelated, nil
	}

	switch evt.Type {
	case "executing":
		var data executingData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return outcomeUnrelated, nil
		}
		if data.PromptID != promptID {
			return outcomeUnrelated, nil
		}
		if data.Node == nil {
			return outcomeCompleted, nil
		}
		return outcomeStillRunning, nil

	case "execution_error":
		var data executionErrorData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return outcomeUnrelated, nil
		}
		if data.PromptID != promptID {
			return outcomeUnrelated, nil
		}
		return outcomeFailed, evt.Data
	}

	return outcomeUnrelated, nil
}

// ProgressUpdate reports non-terminal activity for the watched job.
type ProgressUpdate struct {
	Node  string
	Value int
	Max   int
}

// progressOf extracts progress detail from a frame when it belongs to the
// watched prompt. Frames that cannot be attributed to it yield nothing.
func progressOf(promptID string, raw []byte) *ProgressUpdate {
	var evt wsEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil
	}

	switch evt.Type {
	case "executing":
		var data executingData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return nil
		}
		if data.PromptID != promptID || data.Node == nil {
			return nil
		}
		return &ProgressUpdate{Node: *data.Node}

	case "progress":
		var data progressData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return nil
		}
		if data.PromptID == "" || data.PromptID != promptID {
			return nil
		}
		return &ProgressUpdate{Value: data.Value, Max: data.Max}
	}

	return nil
}

// WaitForCompletion blocks until the watched prompt reaches a terminal state
// on the upstream event stream, the overall watch deadline passes, or ctx is
// cancelled. The connection is scoped to a fresh client session id, so
// concurrent watchers never share stream state. Non-terminal activity for
// the watched prompt is reported through onProgress when set.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, onProgress func(ProgressUpdate)) error {
	wsURL := fmt.Sprintf("%s/ws?clientId=%s", c.wsURL, uuid.New().String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logrus.Errorf("[ComfyUI] ✗ websocket dial %s failed: %v", wsURL, err)
		return model.NewInternalError("WebSocket error", err)
	}
	defer conn.Close()

	logrus.Infof("[ComfyUI] connected to event stream, watching prompt %s", promptID)

	// Read errors are permanent on this connection, so frames are pumped
	// from a dedicated goroutine instead of using read deadlines as a poll.
	done := make(chan struct{})
	defer close(done)

	msgs := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- raw:
			case <-done:
				return
			}
		}
	}()

	// The overall deadline is absolute from watch start; received frames
	// never reset it.
	deadline := time.NewTimer(c.watchTimeout)
	defer deadline.Stop()

	idle := time.NewTicker(c.receiveTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return model.NewInternalError("WebSocket error", ctx.Err())

		case <-deadline.C:
			logrus.Warnf("[ComfyUI] watch deadline exceeded for prompt %s", promptID)
			return model.NewTimeoutError("Timeout waiting for image generation")

		case err := <-readErr:
			logrus.Errorf("[ComfyUI] ✗ websocket receive failed for prompt %s: %v", promptID, err)
			return model.NewInternalError("WebSocket error", err)

		case <-idle.C:
			logrus.Debugf("[ComfyUI] no events for prompt %s, still watching", promptID)

		case raw := <-msgs:
			idle.Reset(c.receiveTimeout)

			outcome, errData := classifyEvent(promptID, raw)
			switch outcome {
			case outcomeCompleted:
				logrus.Infof("[ComfyUI] execution completed for prompt %s", promptID)
				return nil
			case outcomeFailed:
				logrus.Errorf("[ComfyUI] execution error for prompt %s: %s", promptID, string(errData))
				return model.NewExecutionError(fmt.Sprintf("ComfyUI execution error: %s", string(errData)), errData)
			default:
				if onProgress != nil {
					if p := progressOf(promptID, raw); p != nil {
						onProgress(*p)
					}
				}
			}
		}
	}
}
