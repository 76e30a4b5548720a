package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LoadState is the per-variable resolution state.
type LoadState string

const (
	StatePending  LoadState = "pending"
	StateLoading  LoadState = "loading"
	StateResolved LoadState = "resolved"
	StateFailed   LoadState = "failed"
)

// Option is one selectable (label, value) pair.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Filter is one user-managed ad-hoc filter of a dynamic_filters variable.
type Filter struct {
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Value holds a variable's current selection. Items carries the selected
// values of every kind except dynamic_filters, which uses Filters. A
// single-select variable holds at most one item; an empty Items is null.
type Value struct {
	Items   []string
	Filters []Filter
}

// ScalarValue returns a single-item value.
func ScalarValue(s string) Value {
	return Value{Items: []string{s}}
}

// ListValue returns a multi-item value.
func ListValue(items ...string) Value {
	return Value{Items: append([]string{}, items...)}
}

// IsEmpty reports whether nothing is selected.
func (v Value) IsEmpty() bool {
	return len(v.Items) == 0 && len(v.Filters) == 0
}

// First returns the first selected item.
func (v Value) First() (string, bool) {
	if len(v.Items) == 0 {
		return "", false
	}
	return v.Items[0], true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := Value{}
	if v.Items != nil {
		out.Items = append([]string{}, v.Items...)
	}
	if v.Filters != nil {
		out.Filters = append([]Filter{}, v.Filters...)
	}
	return out
}

// UnmarshalJSON accepts null, a string, a list of strings or a list of
// filters.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err == nil {
		v.Items = []string{single}
		return nil
	}

	var items []string
	if err := json.Unmarshal(trimmed, &items); err == nil {
		v.Items = items
		return nil
	}

	var filters []Filter
	if err := json.Unmarshal(trimmed, &filters); err != nil {
		return fmt.Errorf("%w: expected null, string, list of strings or list of filters", ErrValueShape)
	}
	v.Filters = filters
	return nil
}

// Variable is the runtime record of one configured variable.
type Variable struct {
	Config  VariableConfig
	State   LoadState
	Value   Value
	Options []Option
}

// NewVariable returns a pending variable for cfg.
func NewVariable(cfg VariableConfig) *Variable {
	return &Variable{
		Config: cfg.Clone(),
		State:  StatePending,
	}
}

// Name returns the variable's unique name.
func (v *Variable) Name() string { return v.Config.Name }

// Kind returns the variable's kind.
func (v *Variable) Kind() Kind { return v.Config.Kind }

// IsLoading reports whether a load is in flight.
func (v *Variable) IsLoading() bool { return v.State == StateLoading }

// IsPending reports whether the variable awaits (re)resolution.
func (v *Variable) IsPending() bool { return v.State == StatePending }

// EmptyValue returns the empty value for the variable's shape.
func (v *Variable) EmptyValue() Value {
	switch {
	case v.Config.Kind == KindDynamicFilters:
		return Value{Filters: []Filter{}}
	case v.Config.MultiSelect:
		return Value{Items: []string{}}
	default:
		return Value{}
	}
}

// Normalize coerces val into the variable's shape. A multi-item value for a
// single-select variable, or filters for a non-filter variable, is rejected.
func (v *Variable) Normalize(val Value) (Value, error) {
	if v.Config.Kind == KindDynamicFilters {
		if len(val.Items) > 0 {
			return Value{}, fmt.Errorf("%w: %s expects a list of filters", ErrValueShape, v.Config.Name)
		}
		out := val.Clone()
		if out.Filters == nil {
			out.Filters = []Filter{}
		}
		return out, nil
	}

	if len(val.Filters) > 0 {
		return Value{}, fmt.Errorf("%w: %s does not accept filters", ErrValueShape, v.Config.Name)
	}
	if !v.Config.MultiSelect && len(val.Items) > 1 {
		return Value{}, fmt.Errorf("%w: %s is single-select", ErrValueShape, v.Config.Name)
	}

	out := val.Clone()
	if v.Config.MultiSelect && out.Items == nil {
		out.Items = []string{}
	}
	return out, nil
}

// Clone returns a structurally independent copy of v.
func (v *Variable) Clone() *Variable {
	out := &Variable{
		Config: v.Config.Clone(),
		State:  v.State,
		Value:  v.Value.Clone(),
	}
	if v.Options != nil {
		out.Options = append([]Option{}, v.Options...)
	}
	return out
}

type variableJSON struct {
	Name        string          `json:"name"`
	Kind        Kind            `json:"type"`
	Label       string          `json:"label,omitempty"`
	MultiSelect bool            `json:"multiSelect"`
	Value       json.RawMessage `json:"value"`
	Options     []Option        `json:"options"`
	State       LoadState       `json:"state"`
	IsLoading   bool            `json:"isLoading"`
	IsPending   bool            `json:"isPending"`
}

// MarshalJSON renders value as null or a string for single-select variables,
// a list of strings for multi-select ones and a list of filters for
// dynamic_filters.
func (v Variable) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch {
	case v.Config.Kind == KindDynamicFilters:
		filters := v.Value.Filters
		if filters == nil {
			filters = []Filter{}
		}
		value = filters
	case v.Config.MultiSelect:
		items := v.Value.Items
		if items == nil {
			items = []string{}
		}
		value = items
	default:
		if first, ok := v.Value.First(); ok {
			value = first
		}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	options := v.Options
	if options == nil {
		options = []Option{}
	}

	return json.Marshal(variableJSON{
		Name:        v.Config.Name,
		Kind:        v.Config.Kind,
		Label:       v.Config.Label,
		MultiSelect: v.Config.MultiSelect,
		Value:       raw,
		Options:     options,
		State:       v.State,
		IsLoading:   v.State == StateLoading,
		IsPending:   v.State == StatePending,
	})
}

// UnmarshalJSON restores the snapshot view of a variable. Template fields
// are not part of that view.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var view variableJSON
	if err := json.Unmarshal(data, &view); err != nil {
		return err
	}

	var value Value
	if len(view.Value) > 0 {
		if err := json.Unmarshal(view.Value, &value); err != nil {
			return err
		}
	}

	*v = Variable{
		Config: VariableConfig{
			Name:        view.Name,
			Kind:        view.Kind,
			Label:       view.Label,
			MultiSelect: view.MultiSelect,
		},
		State:   view.State,
		Value:   value,
		Options: view.Options,
	}
	return nil
}
