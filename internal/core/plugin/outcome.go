package plugin

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutcomeKind tags how a single plugin invocation ended
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNoEntryPoint
	OutcomeNotFound
	OutcomeLoadError
	OutcomeRuntimeError
	OutcomeCanceled
)

// NoEntryPointMessage is the placeholder recorded for plugins without Run
const NoEntryPointMessage = "no Run entry point"

var outcomeKindNames = map[OutcomeKind]string{
	OutcomeSuccess:      "success",
	OutcomeNoEntryPoint: "no_entry_point",
	OutcomeNotFound:     "not_found",
	OutcomeLoadError:    "load_error",
	OutcomeRuntimeError: "runtime_error",
	OutcomeCanceled:     "canceled",
}

// String returns the stable identifier of the kind
func (k OutcomeKind) String() string {
	if name, ok := outcomeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseOutcomeKind is the inverse of OutcomeKind.String
func ParseOutcomeKind(value string) (OutcomeKind, error) {
	for kind, name := range outcomeKindNames {
		if name == value {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("invalid outcome kind: %s", value)
}

// IsFailure reports whether the kind represents a failed plugin
func (k OutcomeKind) IsFailure() bool {
	return k != OutcomeSuccess && k != OutcomeNoEntryPoint
}

// Outcome is the result recorded for one plugin
type Outcome struct {
	Kind     OutcomeKind
	Value    interface{}
	Message  string
	Duration time.Duration
}

// Succeeded creates an outcome carrying the entry point's return value
func Succeeded(value interface{}, duration time.Duration) Outcome {
	return Outcome{Kind: OutcomeSuccess, Value: value, Duration: duration}
}

// MissingEntryPoint creates the placeholder outcome for plugins without Run
func MissingEntryPoint(duration time.Duration) Outcome {
	return Outcome{Kind: OutcomeNoEntryPoint, Message: NoEntryPointMessage, Duration: duration}
}

// Failed creates an outcome from an error, classifying it with KindOf
func Failed(err error, duration time.Duration) Outcome {
	kind := KindOf(err)
	if kind == OutcomeNoEntryPoint {
		return MissingEntryPoint(duration)
	}
	if kind == OutcomeSuccess {
		kind = OutcomeRuntimeError
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: kind, Message: msg, Duration: duration}
}

// String renders the outcome the way it appears in a flat name->result listing
func (o Outcome) String() string {
	if o.Kind != OutcomeSuccess {
		return o.Message
	}
	if o.Value == nil {
		return "<nil>"
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	if data, err := json.Marshal(o.Value); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", o.Value)
}

// outcomeView is the serialized form of an Outcome
type outcomeView struct {
	Kind       string      `json:"kind" yaml:"kind"`
	Value      interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Message    string      `json:"message,omitempty" yaml:"message,omitempty"`
	DurationMS int64       `json:"duration_ms" yaml:"duration_ms"`
}

func (o Outcome) view() outcomeView {
	v := outcomeView{
		Kind:       o.Kind.String(),
		Message:    o.Message,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Kind == OutcomeSuccess {
		v.Value = o.Value
		if _, err := json.Marshal(o.Value); err != nil {
			v.Value = fmt.Sprintf("%v", o.Value)
		}
	}
	return v
}

// MarshalJSON implements json.Marshaler
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.view())
}

// MarshalYAML implements yaml.Marshaler
func (o Outcome) MarshalYAML() (interface{}, error) {
	return o.view(), nil
}
