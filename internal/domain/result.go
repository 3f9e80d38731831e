package domain

import "encoding/json"

// Result is the canonical shape of every command outcome handed back to callers.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`

	// Raw holds the untouched backend reply when it already carried a success field.
	Raw json.RawMessage `json:"-"`
}

func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
