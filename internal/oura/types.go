package oura

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Resource identifies one of the usercollection endpoints this client reads.
type Resource string

const (
	// DailySleep holds one scored summary per day.
	DailySleep Resource = "daily_sleep"
	// Sleep holds the individual sleep sessions, naps included.
	Sleep Resource = "sleep"
)

// Path returns the endpoint path relative to the API base URL
func (r Resource) Path() string {
	return "/v2/usercollection/" + string(r)
}

func (r Resource) valid() bool {
	return r == DailySleep || r == Sleep
}

// Document is a decoded collection response: {"data": [...], "next_token": ...}
type Document struct {
	records   []Record
	hasData   bool
	// NextToken is set when the API has further pages. Only the first page
	// is consumed.
	NextToken string
}

// HasData reports whether the response carried a "data" key at all.
func (d *Document) HasData() bool {
	return d != nil && d.hasData
}

// Records returns the entries of the data array in the order received.
func (d *Document) Records() []Record {
	if d == nil {
		return nil
	}
	return d.records
}

// First returns data[0].
func (d *Document) First() (Record, error) {
	if !d.HasData() {
		return nil, &MissingFieldError{Path: "data"}
	}
	if len(d.records) == 0 {
		return nil, &MissingFieldError{Path: "data[0]"}
	}
	return d.records[0], nil
}

func decodeDocument(body []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, err
	}

	doc := &Document{}

	if raw, ok := top["next_token"]; ok {
		var token any
		if err := json.Unmarshal(raw, &token); err != nil {
			return nil, fmt.Errorf("next_token: %w", err)
		}
		// null and non-string tokens mean no further page
		if s, ok := token.(string); ok {
			doc.NextToken = s
		}
	}

	raw, ok := top["data"]
	if !ok {
		return doc, nil
	}

	doc.hasData = true
	if err := json.Unmarshal(raw, &doc.records); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	return doc, nil
}

// Record is one entry of a collection's data array, keyed by field name.
type Record map[string]any

// Lookup resolves a dotted path such as "readiness.temperature_deviation".
// A present JSON null resolves to nil without error.
func (r Record) Lookup(path string) (any, error) {
	var current any = map[string]any(r)

	parts := strings.Split(path, ".")
	for i, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &MissingFieldError{Path: strings.Join(parts[:i], "."), Want: "object"}
		}

		value, ok := obj[part]
		if !ok {
			return nil, &MissingFieldError{Path: strings.Join(parts[:i+1], ".")}
		}
		current = value
	}

	return current, nil
}

// String returns the string at path.
func (r Record) String(path string) (string, error) {
	value, err := r.Lookup(path)
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", &MissingFieldError{Path: path, Want: "string"}
	}
	return s, nil
}

// Number returns the number at path.
func (r Record) Number(path string) (float64, error) {
	value, err := r.Lookup(path)
	if err != nil {
		return 0, err
	}

	n, ok := value.(float64)
	if !ok {
		return 0, &MissingFieldError{Path: path, Want: "number"}
	}
	return n, nil
}

// Time parses the RFC 3339 timestamp at path, keeping its offset.
func (r Record) Time(path string) (time.Time, error) {
	s, err := r.String(path)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &FieldFormatError{Path: path, Value: s, Err: err}
	}
	return t, nil
}
