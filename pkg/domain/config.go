package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies how a variable obtains its options and value.
type Kind string

const (
	KindQueryValues    Kind = "query_values"
	KindCustom         Kind = "custom"
	KindConstant       Kind = "constant"
	KindTextbox        Kind = "textbox"
	KindDynamicFilters Kind = "dynamic_filters"
)

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindQueryValues, KindCustom, KindConstant, KindTextbox, KindDynamicFilters:
		return true
	}
	return false
}

// SelectAllMode governs the default selection when no prior value survives.
type SelectAllMode string

const (
	SelectFirst  SelectAllMode = "first"
	SelectAll    SelectAllMode = "all"
	SelectCustom SelectAllMode = "custom"
)

// SelectAllPolicy is the normalized select-all rule of a variable.
type SelectAllPolicy struct {
	Mode   SelectAllMode
	Custom []string
}

// QueryFilter is one predicate of a query_values template.
type QueryFilter struct {
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// QueryData describes where a query_values variable fetches its options.
type QueryData struct {
	Stream        string        `json:"stream"`
	StreamType    string        `json:"stream_type"`
	Field         string        `json:"field"`
	Filter        []QueryFilter `json:"filter,omitempty"`
	MaxRecordSize int           `json:"max_record_size,omitempty"`
}

// OptionConfig is a statically configured option of a custom variable.
type OptionConfig struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// VariableConfig is the declarative description of one variable.
type VariableConfig struct {
	Name                   string         `json:"name"`
	Kind                   Kind           `json:"type"`
	Label                  string         `json:"label,omitempty"`
	MultiSelect            bool           `json:"multiSelect"`
	SelectAllPolicy        SelectAllMode  `json:"selectAllPolicy,omitempty"`
	CustomMultiSelectValue []string       `json:"customMultiSelectValue,omitempty"`
	QueryData              *QueryData     `json:"query_data,omitempty"`
	Options                []OptionConfig `json:"options,omitempty"`

	// Value is the fixed value of a constant or the default of a textbox.
	Value string `json:"value,omitempty"`
}

// Validate checks the fields required by the variable's kind.
func (c *VariableConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: %q for variable %s", ErrUnknownKind, c.Kind, c.Name)
	}

	switch c.SelectAllPolicy {
	case "", "none", SelectFirst, SelectAll, SelectCustom:
	default:
		return fmt.Errorf("%w: unsupported selectAllPolicy %q for variable %s",
			ErrInvalidConfig, c.SelectAllPolicy, c.Name)
	}

	if c.Kind == KindQueryValues {
		if c.QueryData == nil {
			return fmt.Errorf("%w: query_data is required for variable %s", ErrInvalidConfig, c.Name)
		}
		if c.QueryData.Stream == "" || c.QueryData.Field == "" {
			return fmt.Errorf("%w: stream and field are required for variable %s", ErrInvalidConfig, c.Name)
		}
	}

	return nil
}

// Policy returns the normalized select-all policy.
func (c *VariableConfig) Policy() SelectAllPolicy {
	switch c.SelectAllPolicy {
	case SelectAll:
		return SelectAllPolicy{Mode: SelectAll}
	case SelectCustom:
		return SelectAllPolicy{Mode: SelectCustom, Custom: append([]string(nil), c.CustomMultiSelectValue...)}
	default:
		return SelectAllPolicy{Mode: SelectFirst}
	}
}

// Clone returns a deep copy of the config.
func (c VariableConfig) Clone() VariableConfig {
	out := c
	out.CustomMultiSelectValue = append([]string(nil), c.CustomMultiSelectValue...)
	out.Options = append([]OptionConfig(nil), c.Options...)
	if c.QueryData != nil {
		qd := *c.QueryData
		qd.Filter = append([]QueryFilter(nil), c.QueryData.Filter...)
		out.QueryData = &qd
	}
	return out
}

// InitialValue is the raw encoded initial value of one variable. It accepts
// either a JSON string or a list of strings.
type InitialValue []string

// UnmarshalJSON implements json.Unmarshaler.
func (v *InitialValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = InitialValue{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("initial value must be a string or a list of strings: %w", err)
	}
	*v = list
	return nil
}

// InitialValues maps variable names to encoded initial values.
type InitialValues map[string]InitialValue

// DecodeFilters decodes the percent-encoded JSON form of a dynamic_filters
// value. A literal '+' stays a plus sign.
func DecodeFilters(encoded string) ([]Filter, error) {
	if encoded == "" {
		return nil, nil
	}

	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape filters: %w", err)
	}

	var filters []Filter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, fmt.Errorf("failed to decode filters: %w", err)
	}
	return filters, nil
}

// EncodeFilters is the inverse of DecodeFilters.
func EncodeFilters(filters []Filter) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("failed to encode filters: %w", err)
	}
	return url.PathEscape(string(data)), nil
}
