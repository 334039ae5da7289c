// Package plan holds the wire shape of an LM-generated execution plan:
// an ordered list of tool calls and resource reads, with optional
// explicit dependency references.
package plan

import "encoding/json"

// StepType distinguishes a tool invocation from a resource fetch.
type StepType string

const (
	StepTool     StepType = "tool"
	StepResource StepType = "resource"
)

// Step is a single unit of work in a Plan.
type Step struct {
	ID       string         `json:"id"`
	Type     StepType       `json:"type"`
	Server   string         `json:"server"`
	Tool     string         `json:"tool,omitempty"`
	URI      string         `json:"uri,omitempty"`
	Args     map[string]any `json:"arguments,omitempty"`
	Produces string         `json:"produces,omitempty"`

	// From holds the step's resolved $from references, always in list
	// form even when the wire value was a bare string. FromWasList
	// records whether the wire value used list syntax, since the
	// validator checks that format against how the step is consumed.
	From        []string `json:"-"`
	FromWasList bool     `json:"-"`
}

// UnmarshalJSON decodes a step, normalizing the $from field's
// string|[]string|[] shapes into From/FromWasList.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID       string          `json:"id"`
		Type     StepType        `json:"type"`
		Server   string          `json:"server"`
		Tool     string          `json:"tool,omitempty"`
		URI      string          `json:"uri,omitempty"`
		Args     map[string]any  `json:"arguments,omitempty"`
		Produces string          `json:"produces,omitempty"`
		From     json.RawMessage `json:"$from"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.ID = a.ID
	s.Type = a.Type
	s.Server = a.Server
	s.Tool = a.Tool
	s.URI = a.URI
	s.Args = a.Args
	s.Produces = a.Produces

	refs, wasList, err := decodeFrom(a.From)
	if err != nil {
		return err
	}
	s.From = refs
	s.FromWasList = wasList
	return nil
}

// MarshalJSON re-encodes a step, restoring $from's original shape.
func (s Step) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID       string         `json:"id"`
		Type     StepType       `json:"type"`
		Server   string         `json:"server"`
		Tool     string         `json:"tool,omitempty"`
		URI      string         `json:"uri,omitempty"`
		Args     map[string]any `json:"arguments,omitempty"`
		Produces string         `json:"produces,omitempty"`
		From     any            `json:"$from"`
	}
	a := alias{
		ID: s.ID, Type: s.Type, Server: s.Server, Tool: s.Tool,
		URI: s.URI, Args: s.Args, Produces: s.Produces,
	}
	switch {
	case s.FromWasList:
		a.From = s.From
	case len(s.From) == 1:
		a.From = s.From[0]
	default:
		a.From = s.From
	}
	return json.Marshal(a)
}

func decodeFrom(raw json.RawMessage) (refs []string, wasList bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, false, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true, nil
	}
	return nil, false, &json.UnmarshalTypeError{Value: "$from", Type: nil}
}

// Plan is an ordered list of steps; plan order is the tiebreak used
// throughout DAG construction and scheduling.
type Plan []Step

// ByID returns the index of the step with the given id, or -1.
func (p Plan) ByID(id string) int {
	for i, s := range p {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// IsFromPlaceholder reports whether v is an argument-level {"$from": ...}
// reference, returning its referenced ids and whether it used list form.
func IsFromPlaceholder(v any) (refs []string, isList bool, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap || len(m) != 1 {
		return nil, false, false
	}
	raw, has := m["$from"]
	if !has {
		return nil, false, false
	}
	switch t := raw.(type) {
	case string:
		return []string{t}, false, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false, false
			}
			out = append(out, s)
		}
		return out, true, true
	default:
		return nil, false, false
	}
}
