package model

import "strings"

// RunListOptions provides filtering and pagination for listing runs.
type RunListOptions struct {
	Status      *RunStatus   `json:"status,omitempty"`
	TriggerType *TriggerType `json:"trigger_type,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Offset      int          `json:"offset,omitempty"`
}

// Normalize applies defaults and bounds to the options.
func (o *RunListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Validate validates the filter values.
func (o *RunListOptions) Validate() error {
	if o.Status != nil && !o.Status.Valid() {
		return &InvalidFilterError{Field: "status", Value: string(*o.Status)}
	}
	if o.TriggerType != nil && !o.TriggerType.Valid() {
		return &InvalidFilterError{Field: "trigger_type", Value: string(*o.TriggerType)}
	}
	return nil
}

// InvalidFilterError reports a rejected list filter value.
type InvalidFilterError struct {
	Field string
	Value string
}

func (e *InvalidFilterError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	b.WriteString(e.Field)
	b.WriteString(" filter: ")
	b.WriteString(e.Value)
	return b.String()
}
