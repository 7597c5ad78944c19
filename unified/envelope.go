package unified

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Shape is the outer structure of an upstream body. The provider is not consistent across endpoints.
type Shape string

const (
	ShapeDataList    Shape = "data_list"
	ShapeDataObject  Shape = "data_object"
	ShapeBareList    Shape = "bare_list"
	ShapeErrorObject Shape = "error_object"
	ShapeUnknown     Shape = "unknown"
)

// Envelope is the decoded body. Items is set for the three usable shapes;
// Fields holds the top-level members whenever the body is an object.
type Envelope struct {
	Shape  Shape
	Items  []json.RawMessage
	Fields map[string]json.RawMessage

	// error_object only
	StatusCode int
	ErrorText  string
	Message    string
}

// Keys returns the sorted top-level keys of an object body.
func (e Envelope) Keys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeEnvelope classifies body. A data key wins over an embedded error status.
func DecodeEnvelope(body []byte) Envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Envelope{Shape: ShapeUnknown}
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Envelope{Shape: ShapeUnknown}
		}
		return Envelope{Shape: ShapeBareList, Items: items}
	case '{':
	default:
		return Envelope{Shape: ShapeUnknown}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Envelope{Shape: ShapeUnknown}
	}
	env := Envelope{Shape: ShapeUnknown, Fields: fields}

	if data, ok := fields["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) > 0 {
			switch data[0] {
			case '[':
				var items []json.RawMessage
				if err := json.Unmarshal(data, &items); err == nil {
					env.Shape = ShapeDataList
					env.Items = items
					return env
				}
			case '{':
				env.Shape = ShapeDataObject
				env.Items = []json.RawMessage{data}
				return env
			}
		}
	}

	if raw, ok := fields["statusCode"]; ok {
		var status int
		if err := json.Unmarshal(raw, &status); err == nil && status >= 400 {
			env.Shape = ShapeErrorObject
			env.StatusCode = status
			env.ErrorText = fieldText(fields, "error")
			env.Message = fieldText(fields, "message")
		}
	}
	return env
}

// Normalize maps a response to its items or a typed error.
func Normalize(resp *Response) ([]json.RawMessage, error) {
	if resp == nil {
		return nil, &Error{Kind: KindTransport, Message: "no response"}
	}
	if resp.StatusCode >= 400 {
		return nil, upstreamError(resp)
	}

	env := DecodeEnvelope(resp.Body)
	switch env.Shape {
	case ShapeDataList, ShapeDataObject, ShapeBareList:
		return env.Items, nil
	case ShapeErrorObject:
		return nil, &Error{
			Kind:    KindUpstream,
			Status:  env.StatusCode,
			Message: fmt.Sprintf("API Error: %s - %s", env.ErrorText, env.Message),
		}
	}
	return nil, unrecognizedShape(env)
}

// upstreamError reports a failed status. 401 is always "Unauthorized"; otherwise the provider's
// message field is used, falling back to the status text.
func upstreamError(resp *Response) *Error {
	e := &Error{Kind: KindUpstream, Status: resp.StatusCode}
	if resp.StatusCode == http.StatusUnauthorized {
		e.Message = "Unauthorized"
		return e
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &fields); err == nil {
		e.Message = fieldText(fields, "message")
		if e.Message == "" {
			e.Message = fieldText(fields, "error")
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return e
}

func fieldText(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Result is the uniform outcome handed to the HTTP layer.
type Result struct {
	Success      bool
	Items        []json.RawMessage
	ErrorKind    ErrorKind
	Status       int
	Message      string
	ObservedKeys []string
}

func NewResult(items []json.RawMessage, err error) Result {
	if err != nil {
		r := Result{ErrorKind: KindOf(err), Message: err.Error()}
		var ue *Error
		if errors.As(err, &ue) {
			r.Message = ue.Message
			r.Status = ue.Status
			r.ObservedKeys = ue.ObservedKeys
		}
		return r
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return Result{Success: true, Items: items}
}

// Body renders the result with the items under itemsKey.
func (r Result) Body(itemsKey string) map[string]interface{} {
	if r.Success {
		return map[string]interface{}{
			"success": true,
			itemsKey:  r.Items,
		}
	}
	body := map[string]interface{}{
		"success": false,
		"message": r.Message,
	}
	if r.ErrorKind != "" {
		body["error_kind"] = r.ErrorKind
	}
	if r.Status != 0 {
		body["status"] = r.Status
	}
	if len(r.ObservedKeys) > 0 {
		body["observed_keys"] = r.ObservedKeys
	}
	return body
}
