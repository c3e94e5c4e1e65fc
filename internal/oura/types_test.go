package oura

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	doc, err := decodeDocument([]byte(`{"data":[{"score":80}],"next_token":"abc"}`))
	require.NoError(t, err)
	assert.True(t, doc.HasData())
	assert.Equal(t, "abc", doc.NextToken)
	assert.Len(t, doc.Records(), 1)

	doc, err = decodeDocument([]byte(`{"data":null,"next_token":null}`))
	require.NoError(t, err)
	assert.True(t, doc.HasData(), "a null data key is still present")
	assert.Empty(t, doc.Records())
	assert.Empty(t, doc.NextToken)

	doc, err = decodeDocument([]byte(`{"data":[],"next_token":42}`))
	require.NoError(t, err)
	assert.Empty(t, doc.NextToken, "non-string tokens mean no further page")

	_, err = decodeDocument([]byte(`[]`))
	assert.Error(t, err)

	var nilDoc *Document
	assert.False(t, nilDoc.HasData())
	assert.Nil(t, nilDoc.Records())
}

func TestRecord_Lookup(t *testing.T) {
	rec := Record{
		"day":       "2024-01-02",
		"nothing":   nil,
		"score":     81.0,
		"readiness": map[string]any{"temperature_deviation": -0.12},
	}

	value, err := rec.Lookup("readiness.temperature_deviation")
	require.NoError(t, err)
	assert.Equal(t, -0.12, value)

	value, err = rec.Lookup("nothing")
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = rec.Lookup("readiness.score")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "readiness.score", missing.Path)
	assert.Empty(t, missing.Want)

	_, err = rec.Lookup("day.value")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "day", missing.Path)
	assert.Equal(t, "object", missing.Want)

	_, err = rec.Lookup("nothing.deeper")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nothing", missing.Path)
}

func TestRecord_TypedAccessors(t *testing.T) {
	rec := Record{
		"day":           "2024-01-02",
		"score":         81.0,
		"bedtime_start": "2024-01-01T23:15:00-08:00",
		"bedtime_end":   "yesterday",
	}

	s, err := rec.String("day")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", s)

	_, err = rec.String("score")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "string", missing.Want)

	n, err := rec.Number("score")
	require.NoError(t, err)
	assert.Equal(t, 81.0, n)

	_, err = rec.Number("day")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "number", missing.Want)

	ts, err := rec.Time("bedtime_start")
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Equal(t, -8*3600, offset, "offset should survive parsing")
	assert.Equal(t, time.Date(2024, 1, 2, 7, 15, 0, 0, time.UTC), ts.UTC())

	_, err = rec.Time("bedtime_end")
	var formatErr *FieldFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "yesterday", formatErr.Value)
	assert.Equal(t, "field_format", ErrorKind(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "none", ErrorKind(nil))
	assert.Equal(t, "missing_field", ErrorKind(&MissingFieldError{Path: "day"}))
	assert.Equal(t, "other", ErrorKind(assert.AnError))
}
