package llm

import (
	"bytes"
	"encoding/json"
)

// Output is one unit of model output. The concrete variants are PlainText,
// ContentField, TextField, MessageField and Unrecognized.
type Output interface {
	isOutput()
}

// PlainText is an output unit that is a bare string.
type PlainText string

// ContentField is an object carrying a string "content" field, the shape of
// chat-completion messages.
type ContentField struct{ Content string }

// TextField is an object carrying a string "text" field, the shape of
// generateContent parts.
type TextField struct{ Text string }

// MessageField is an object carrying a string "message" field.
type MessageField struct{ Message string }

// Unrecognized is any other shape. Raw holds the unit's JSON encoding.
type Unrecognized struct{ Raw json.RawMessage }

func (PlainText) isOutput()    {}
func (ContentField) isOutput() {}
func (TextField) isOutput()    {}
func (MessageField) isOutput() {}
func (Unrecognized) isOutput() {}

// DecodeOutput classifies a raw output unit. Fields are probed in the order
// content, text, message and only string values count.
func DecodeOutput(raw json.RawMessage) Output {
	trimmed := bytes.TrimSpace(raw)

	var s string
	if json.Unmarshal(trimmed, &s) == nil {
		return PlainText(s)
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(trimmed, &fields) == nil {
		if v, ok := stringField(fields, "content"); ok {
			return ContentField{Content: v}
		}
		if v, ok := stringField(fields, "text"); ok {
			return TextField{Text: v}
		}
		if v, ok := stringField(fields, "message"); ok {
			return MessageField{Message: v}
		}
	}
	return Unrecognized{Raw: append(json.RawMessage(nil), trimmed...)}
}

// Text returns the string a unit carries. Unrecognized units yield their
// JSON text.
func Text(o Output) string {
	switch v := o.(type) {
	case PlainText:
		return string(v)
	case ContentField:
		return v.Content
	case TextField:
		return v.Text
	case MessageField:
		return v.Message
	case Unrecognized:
		return string(v.Raw)
	default:
		return ""
	}
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
