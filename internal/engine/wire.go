package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/retention-agent/internal/domain"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire protocol for service retention.engine.v1.ReasoningEngine. Every request
// and response is a google.protobuf.Struct with the following fields.
//
//	Step (server streaming)
//	  request:  {"thread_id": string, "input": {"kind": "message"|"resume", "text": string}}
//	  response: {"message": Message, "paused": bool}
//	GetStatus (unary)
//	  request:  {"thread_id": string}
//	  response: {"paused": bool, "pending_action": {"name": string, "args": object}}
//	Health (unary)
//	  request:  {}
//	  response: {"status": "ok"}
//
// Message uses the transcript JSON shape: role, content, name, tool_call_id and
// tool_calls [{id, name, args}].
const (
	ServiceName = "retention.engine.v1.ReasoningEngine"

	methodStep      = "/" + ServiceName + "/Step"
	methodGetStatus = "/" + ServiceName + "/GetStatus"
	methodHealth    = "/" + ServiceName + "/Health"
)

type stepRequest struct {
	ThreadID string    `json:"thread_id"`
	Input    wireInput `json:"input"`
}

type wireInput struct {
	Kind InputKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

type stepResponse struct {
	Message domain.Message `json:"message"`
	Paused  bool           `json:"paused"`
}

type statusRequest struct {
	ThreadID string `json:"thread_id"`
}

type statusResponse struct {
	Paused        bool           `json:"paused"`
	PendingAction *domain.Action `json:"pending_action,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// toStruct converts a JSON-tagged Go value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return out, nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged Go value.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
