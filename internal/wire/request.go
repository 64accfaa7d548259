package wire

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
)

// LiveRequestToStruct encodes {slot, port, baud_rate, logging, color}.
func LiveRequestToStruct(req ingest.LiveRequest) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"slot":      structpb.NewNumberValue(float64(req.Slot)),
		"port":      structpb.NewStringValue(req.Port),
		"baud_rate": structpb.NewNumberValue(float64(req.BaudRate)),
		"logging":   structpb.NewBoolValue(req.EnableLogging),
		"color":     structpb.NewStringValue(req.Color),
	}}
}

// LiveRequestFromStruct decodes a live start request. Only slot and port are required.
func LiveRequestFromStruct(s *structpb.Struct) (ingest.LiveRequest, error) {
	r := newReader(s, "live_request")
	req := ingest.LiveRequest{
		Slot:          r.integer("slot", false),
		Port:          r.str("port"),
		BaudRate:      r.integer("baud_rate", true),
		EnableLogging: r.boolean("logging"),
		Color:         r.optStr("color"),
	}

	return req, r.err
}

// ReplayRequestToStruct encodes {slot, path, source_id, color}.
func ReplayRequestToStruct(req ingest.ReplayRequest) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"slot":      structpb.NewNumberValue(float64(req.Slot)),
		"path":      structpb.NewStringValue(req.Path),
		"source_id": structpb.NewStringValue(req.SourceID),
		"color":     structpb.NewStringValue(req.Color),
	}}
}

// ReplayRequestFromStruct decodes a replay start request. Only slot and path are required.
func ReplayRequestFromStruct(s *structpb.Struct) (ingest.ReplayRequest, error) {
	r := newReader(s, "replay_request")
	req := ingest.ReplayRequest{
		Slot:     r.integer("slot", false),
		Path:     r.str("path"),
		SourceID: r.optStr("source_id"),
		Color:    r.optStr("color"),
	}

	return req, r.err
}

// SlotToStruct encodes a stop request {slot}.
func SlotToStruct(index int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"slot": structpb.NewNumberValue(float64(index)),
	}}
}

// SlotFromStruct decodes a stop request.
func SlotFromStruct(s *structpb.Struct) (int, error) {
	r := newReader(s, "stop_request")
	index := r.integer("slot", false)

	return index, r.err
}
