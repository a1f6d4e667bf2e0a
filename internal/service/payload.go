package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProgressPayload is a decoded PUT /journals/{identifier}/responses body.
type ProgressPayload struct {
	Responses  map[string]string
	ActiveStep int
	Todo       bool
	SkippedAt  *string
}

// DecodeProgressPayload validates and coerces a save body. Absent or null
// fields take their zero value; activeStep is floored at 0.
func DecodeProgressPayload(body []byte) (*ProgressPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected JSON body", ErrInvalidPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: expected JSON body", ErrInvalidPayload)
	}

	payload := &ProgressPayload{Responses: map[string]string{}}

	if raw, ok := present(fields, "responses"); ok {
		var values map[string]*string
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: responses must map prompt keys to text", ErrInvalidPayload)
		}
		for key, value := range values {
			if value == nil {
				payload.Responses[key] = ""
				continue
			}
			payload.Responses[key] = *value
		}
	}

	if raw, ok := present(fields, "activeStep"); ok {
		step, err := decodeStep(raw)
		if err != nil {
			return nil, err
		}
		payload.ActiveStep = step
	}

	if raw, ok := present(fields, "todo"); ok {
		todo, err := decodeFlag(raw)
		if err != nil {
			return nil, err
		}
		payload.Todo = todo
	}

	if raw, ok := present(fields, "skippedAt"); ok {
		var skippedAt string
		if err := json.Unmarshal(raw, &skippedAt); err != nil {
			return nil, fmt.Errorf("%w: skippedAt must be a timestamp string or null", ErrInvalidPayload)
		}
		payload.SkippedAt = &skippedAt
	}

	return payload, nil
}

// present reports whether key exists with a non-null value.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeStep(raw json.RawMessage) (int, error) {
	var value float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: activeStep must be an integer", ErrInvalidPayload)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: activeStep must be an integer", ErrInvalidPayload)
		}
		value = parsed
	default:
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, fmt.Errorf("%w: activeStep must be an integer", ErrInvalidPayload)
		}
	}

	if math.IsNaN(value) || value < 0 {
		return 0, nil
	}
	if value > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(value), nil
}

func decodeFlag(raw json.RawMessage) (bool, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, fmt.Errorf("%w: todo must be a boolean", ErrInvalidPayload)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "", "0", "false":
			return false, nil
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: todo must be a boolean", ErrInvalidPayload)
	}
}
