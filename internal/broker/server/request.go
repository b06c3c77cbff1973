package server

import (
	"encoding/json"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/registry"
)

// allowedTopLevelFields is the closed set of request keys. Unknown fields are
// rejected rather than ignored; this is a forward-compat contract.
var allowedTopLevelFields = map[string]bool{
	"contract_version": true,
	"request_id":       true,
	"requester":        true,
	"graph":            true,
	"operation":        true,
	"timeout_ms":       true,
}

var requiredFields = []string{
	"contract_version",
	"request_id",
	"requester",
	"graph",
	"operation",
}

// validateRequest checks the raw body and decodes it into a typed Request.
// The checks run in a fixed order so each failure mode keeps its error code:
// unknown fields, missing fields, contract version, timeout, then the
// compiled JSON schema for the nested shapes. Structural rejection emits no
// audit events; the returned response is the caller's only signal.
func (s *Server) validateRequest(def *registry.Definition, raw map[string]any) (contract.Request, *contract.Response) {
	requestID := stringField(raw, "request_id")

	var unknown []string
	for key := range raw {
		if !allowedTopLevelFields[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		resp := s.errorResponse(requestID, contract.CodeInvalidField,
			"Unknown request fields", map[string]any{"fields": unknown})
		return contract.Request{}, &resp
	}

	var missing []string
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		resp := s.errorResponse(requestID, contract.CodeInvalidField,
			"Missing required fields", map[string]any{"fields": missing})
		return contract.Request{}, &resp
	}

	if version := raw["contract_version"]; version != s.cfg.ContractVersion {
		resp := s.errorResponse(requestID, contract.CodeInvalidField,
			"Unsupported contract_version", map[string]any{"contract_version": version})
		return contract.Request{}, &resp
	}

	timeoutMS := s.cfg.DefaultTimeoutMS
	if rawTimeout, ok := raw["timeout_ms"]; ok {
		n, isInt := intValue(rawTimeout)
		if !isInt || n <= 0 {
			resp := s.errorResponse(requestID, contract.CodeInvalidTimeout,
				"timeout_ms must be a positive integer", map[string]any{"timeout_ms": rawTimeout})
			return contract.Request{}, &resp
		}
		timeoutMS = n
	}

	if err := def.Validate(raw); err != nil {
		meta := map[string]any{}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			meta["pointer"] = leafLocation(ve)
		}
		resp := s.errorResponse(requestID, contract.CodeInvalidField,
			"Request body does not match tool schema", meta)
		return contract.Request{}, &resp
	}

	var req contract.Request
	encoded, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(encoded, &req)
	}
	if err != nil {
		resp := s.errorResponse(requestID, contract.CodeInvalidField,
			"Request body could not be decoded", map[string]any{})
		return contract.Request{}, &resp
	}
	req.TimeoutMS = timeoutMS

	return req, nil
}

// intValue reports whether v is an integral number and returns it as int.
// JSON decoding yields float64, in-process callers may pass native ints, and
// booleans are never integers.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int64(n)) {
			return int(n), true
		}
		return 0, false
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

// leafLocation walks to the deepest schema violation for a useful pointer.
func leafLocation(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve.InstanceLocation
}
