package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/slpdev/slp-api/internal/errs"
	"github.com/slpdev/slp-api/internal/schema"
)

// decodeBody reads a JSON object body into a Record. Numbers are kept as
// json.Number so integer columns can reject fractional input.
func decodeBody(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid JSON body", err)
	}
	return rec, nil
}

// validate checks rec against the field set and returns a coerced copy.
// It runs entirely in memory — no database access happens before it passes.
//
// Rules:
//   - keys that are not columns of the table are dropped, not errors
//   - null is accepted only for nullable columns
//   - values must match the column's scalar kind (ints may not be fractional)
//   - required fields must be present (Create schema only; the Update schema
//     marks nothing required, which is what makes updates partial)
func (fs fieldSet) validate(rec Record) (Record, error) {
	out := make(Record, len(rec))

	for name, raw := range rec {
		f, ok := fs.byName[name]
		if !ok {
			continue
		}

		if raw == nil {
			if !f.nullable {
				return nil, errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("field %q is not nullable", name))
			}
			out[name] = nil
			continue
		}

		val, err := coerce(raw, f.kind)
		if err != nil {
			return nil, errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("field %q: %v", name, err))
		}
		out[name] = val
	}

	for name, f := range fs.byName {
		if f.required {
			if _, ok := rec[name]; !ok {
				return nil, errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("missing required field %q", name))
			}
		}
	}

	return out, nil
}

// coerce converts a decoded JSON value to the Go value for the column kind.
func coerce(raw any, kind schema.Kind) (any, error) {
	switch kind {
	case schema.KindInt:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %s", n.String())
		}
		return i, nil

	case schema.KindFloat:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", n.String())
		}
		return f, nil

	case schema.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return b, nil

	case schema.KindTime:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", raw)
		}
		t, err := parseTime(s)
		if err != nil {
			return nil, err
		}
		return t, nil

	default: // KindString, including unknown DB types degraded to string
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	}
}

// timeLayouts are accepted wire formats for date/time columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
