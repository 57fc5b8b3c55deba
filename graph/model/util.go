package model

import "encoding/json"

// decodeJSON unmarshals raw provider-SDK JSON payloads (tool-call
// arguments) into a generic map, matching the map[string]interface{}
// shape ToolCall.Input and Tool.Call expect throughout this module.
func decodeJSON(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
