package sleep

import (
	"encoding/json"
	"testing"

	"ouraring/internal/oura"
	"ouraring/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record converts a fixture into the shape the JSON decoder produces.
func record(t *testing.T, session map[string]interface{}) oura.Record {
	t.Helper()
	b, err := json.Marshal(session)
	require.NoError(t, err)
	var rec oura.Record
	require.NoError(t, json.Unmarshal(b, &rec))
	return rec
}

func TestNormalize_LongSleep(t *testing.T) {
	sessions := []oura.Record{
		record(t, testutil.NapSession()),
		record(t, testutil.LongSleepSession()),
	}

	result, err := Normalizer{}.Normalize(sessions)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Omitted)

	expected := Attributes{
		AttrDate:               "2024-01-02",
		AttrBedtimeStartHour:   "23:15",
		AttrBedtimeEndHour:     "07:04",
		AttrBreathAverage:      14.875,
		AttrTemperatureDelta:   -0.12,
		AttrLowestHeartRate:    47.0,
		AttrHeartRateAverage:   52.5,
		AttrDeepSleepDuration:  1.51,
		AttrREMSleepDuration:   2.0,
		AttrLightSleepDuration: 3.88,
		AttrTotalSleepDuration: 7.39,
		AttrAwakeDuration:      0.43,
		AttrInBedDuration:      7.83,
	}
	assert.Equal(t, expected, result.Attributes)
}

func TestNormalize_NoLongSleep(t *testing.T) {
	result, err := Normalizer{}.Normalize([]oura.Record{record(t, testutil.NapSession())})
	assert.NoError(t, err)
	assert.Nil(t, result)

	result, err = Normalizer{}.Normalize(nil)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestNormalize_FirstLongSleepWins(t *testing.T) {
	first := testutil.LongSleepSession()
	second := testutil.LongSleepSession()
	second["day"] = "2024-01-03"

	result, err := Normalizer{}.Normalize([]oura.Record{record(t, first), record(t, second)})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", result.Attributes[AttrDate])
}

func TestNormalize_SkipsUntypedSessions(t *testing.T) {
	untyped := testutil.NapSession()
	delete(untyped, "type")

	result, err := Normalizer{}.Normalize([]oura.Record{record(t, untyped), record(t, testutil.LongSleepSession())})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestNormalize_BedtimeKeepsOwnOffset(t *testing.T) {
	tests := []struct {
		name  string
		start string
		want  string
	}{
		{"negative offset", "2024-01-01T23:15:00-08:00", "23:15"},
		{"positive offset", "2024-01-01T22:05:00+02:00", "22:05"},
		{"utc", "2024-01-01T00:00:00Z", "00:00"},
		{"fractional seconds", "2024-01-01T21:59:59.500+01:00", "21:59"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := testutil.LongSleepSession()
			session["bedtime_start"] = tt.start

			result, err := Normalizer{}.Normalize([]oura.Record{record(t, session)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Attributes[AttrBedtimeStartHour])
		})
	}
}

func TestNormalize_PassesNullThrough(t *testing.T) {
	session := testutil.LongSleepSession()
	session["readiness"] = map[string]interface{}{"temperature_deviation": nil}

	result, err := Normalizer{}.Normalize([]oura.Record{record(t, session)})
	require.NoError(t, err)
	value, ok := result.Attributes[AttrTemperatureDelta]
	assert.True(t, ok)
	assert.Nil(t, value)
}

func TestNormalize_MissingFieldAborts(t *testing.T) {
	session := testutil.LongSleepSession()
	session["readiness"] = map[string]interface{}{"score": 70}

	result, err := Normalizer{Policy: FieldPolicyAbort}.Normalize([]oura.Record{record(t, session)})
	assert.Nil(t, result)

	var missing *oura.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "readiness.temperature_deviation", missing.Path)
}

func TestNormalize_MissingFieldOmitted(t *testing.T) {
	session := testutil.LongSleepSession()
	delete(session, "readiness")
	delete(session, "awake_time")
	session["bedtime_end"] = "not a time"

	result, err := Normalizer{Policy: FieldPolicyOmit}.Normalize([]oura.Record{record(t, session)})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotContains(t, result.Attributes, AttrTemperatureDelta)
	assert.NotContains(t, result.Attributes, AttrAwakeDuration)
	assert.NotContains(t, result.Attributes, AttrBedtimeEndHour)
	assert.Equal(t, "23:15", result.Attributes[AttrBedtimeStartHour])
	assert.Len(t, result.Attributes, len(fields)-3)

	assert.ElementsMatch(t,
		[]string{"readiness", "awake_time", "bedtime_end"},
		result.OmittedPaths())
}

func TestNormalize_WrongTypeDuration(t *testing.T) {
	session := testutil.LongSleepSession()
	session["deep_sleep_duration"] = "5430"

	_, err := Normalizer{}.Normalize([]oura.Record{record(t, session)})
	var missing *oura.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "deep_sleep_duration", missing.Path)
	assert.Equal(t, "number", missing.Want)
}

func TestNormalize_IsPure(t *testing.T) {
	sessions := []oura.Record{record(t, testutil.LongSleepSession())}
	n := Normalizer{}

	first, err := n.Normalize(sessions)
	require.NoError(t, err)
	second, err := n.Normalize(sessions)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, record(t, testutil.LongSleepSession()), sessions[0], "input must not be modified")
}

func TestSecondsToHours(t *testing.T) {
	tests := []struct {
		seconds float64
		want    float64
	}{
		{7200, 2.0},
		{5430, 1.51},
		{0, 0},
		{1, 0},
		{36, 0.01},
		// exact ties round away from zero
		{54, 0.02},
		{162, 0.05},
		{28170, 7.83},
		// 1.005 h is not exact in binary and falls below the tie
		{3618, 1.0},
		{3599.9, 1.0},
		{86400, 24},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SecondsToHours(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestParseFieldPolicy(t *testing.T) {
	p, err := ParseFieldPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FieldPolicyAbort, p)

	p, err = ParseFieldPolicy("omit")
	require.NoError(t, err)
	assert.Equal(t, FieldPolicyOmit, p)
	assert.Equal(t, "omit", p.String())

	_, err = ParseFieldPolicy("ignore")
	assert.Error(t, err)
}

func TestAttributes_Clone(t *testing.T) {
	attrs := Attributes{AttrDate: "2024-01-02"}
	clone := attrs.Clone()
	clone[AttrDate] = "changed"
	assert.Equal(t, "2024-01-02", attrs[AttrDate])

	assert.Nil(t, Attributes(nil).Clone())
}
