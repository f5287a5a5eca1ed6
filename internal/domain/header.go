package domain

import "strings"

// Column pairs a result field with the label written in the header row.
type Column struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// Header is the ordered column layout of an export file.
type Header []Column

// NewHeader builds a Header from parallel key and label sequences.
func NewHeader(keys, labels []string) (Header, error) {
	if len(keys) != len(labels) {
		return nil, ErrValidation("header has %d keys but %d labels", len(keys), len(labels))
	}
	h := make(Header, len(keys))
	for i := range keys {
		h[i] = Column{Key: keys[i], Label: labels[i]}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks that the header has at least one column and that keys are
// non-blank and unique.
func (h Header) Validate() error {
	if len(h) == 0 {
		return ErrValidation("header must declare at least one column")
	}
	seen := make(map[string]bool, len(h))
	for i, c := range h {
		if strings.TrimSpace(c.Key) == "" {
			return ErrValidation("header column %d has an empty key", i)
		}
		if seen[c.Key] {
			return ErrValidation("header key %q is declared more than once", c.Key)
		}
		seen[c.Key] = true
	}
	return nil
}

// Keys returns the field keys in column order.
func (h Header) Keys() []string {
	out := make([]string, len(h))
	for i, c := range h {
		out[i] = c.Key
	}
	return out
}

// Labels returns the header labels in column order.
func (h Header) Labels() []string {
	out := make([]string, len(h))
	for i, c := range h {
		out[i] = c.Label
	}
	return out
}
