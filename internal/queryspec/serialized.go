package queryspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"duck-export/internal/domain"
)

// Serialize renders q in the serialized shape accepted by Resolve.
func Serialize(q domain.Query) (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("serialize query: %w", err)
	}
	return string(data), nil
}

// decodeSerialized parses the JSON encoding of a domain.Query. Unknown fields
// and trailing data are rejected so arbitrary JSON is not mistaken for a query.
func decodeSerialized(spec string) (domain.Query, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(spec)))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var q domain.Query
	if err := dec.Decode(&q); err != nil {
		return domain.Query{}, fmt.Errorf("serialized form: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.Query{}, fmt.Errorf("serialized form: unexpected data after query object")
	}
	if q.Entity == "" {
		return domain.Query{}, fmt.Errorf("serialized form: entity is required")
	}

	for i := range q.Filters {
		for j := range q.Filters[i].Conditions {
			v, err := normalizeJSONValue(q.Filters[i].Conditions[j].Value)
			if err != nil {
				return domain.Query{}, fmt.Errorf("serialized form: filter on %q: %w", q.Filters[i].Conditions[j].Field, err)
			}
			q.Filters[i].Conditions[j].Value = v
		}
	}
	return q, nil
}

// normalizeJSONValue narrows json.Number to int64 or float64 and rejects
// objects, which no lookup accepts.
func normalizeJSONValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s out of range", t)
		}
		return f, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalizeJSONValue(e)
			if err != nil {
				return nil, err
			}
			if _, nested := n.([]any); nested {
				return nil, fmt.Errorf("nested lists are not supported")
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		return nil, fmt.Errorf("object values are not supported")
	default:
		return v, nil
	}
}
