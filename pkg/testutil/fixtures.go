package testutil

import (
	"encoding/json"
)

// LongSleepSession returns a complete "long_sleep" session as the API sends it.
// Callers may mutate the returned map to build edge cases.
func LongSleepSession() map[string]interface{} {
	return map[string]interface{}{
		"id":                   "8f9a5221-639e-4a85-81cb-4065ef23f979",
		"type":                 "long_sleep",
		"day":                  "2024-01-02",
		"bedtime_start":        "2024-01-01T23:15:00-08:00",
		"bedtime_end":          "2024-01-02T07:04:30-08:00",
		"average_breath":       14.875,
		"average_heart_rate":   52.5,
		"lowest_heart_rate":    47,
		"deep_sleep_duration":  5430,
		"rem_sleep_duration":   7200,
		"light_sleep_duration": 13980,
		"total_sleep_duration": 26610,
		"awake_time":           1560,
		"time_in_bed":          28200,
		"readiness": map[string]interface{}{
			"score":                 81,
			"temperature_deviation": -0.12,
		},
	}
}

// NapSession returns a session that is not a long sleep.
func NapSession() map[string]interface{} {
	session := LongSleepSession()
	session["id"] = "2d1e3b0f-2f5c-4f44-9c8e-1f1f2c3a4b5c"
	session["type"] = "late_nap"
	session["bedtime_start"] = "2024-01-02T14:00:00-08:00"
	session["bedtime_end"] = "2024-01-02T14:40:00-08:00"
	session["total_sleep_duration"] = 1800
	return session
}

// DailySleepBody builds a daily_sleep document with one entry per score.
func DailySleepBody(scores ...int) string {
	data := make([]map[string]interface{}, 0, len(scores))
	for i, score := range scores {
		data = append(data, map[string]interface{}{
			"id":    "daily-" + string(rune('a'+i)),
			"day":   "2024-01-02",
			"score": score,
			"contributors": map[string]interface{}{
				"deep_sleep": 90,
				"efficiency": 85,
			},
		})
	}
	return mustJSON(map[string]interface{}{"data": data, "next_token": nil})
}

// SleepBody builds a sleep document from sessions.
func SleepBody(sessions ...map[string]interface{}) string {
	if sessions == nil {
		sessions = []map[string]interface{}{}
	}
	return mustJSON(map[string]interface{}{"data": sessions, "next_token": nil})
}

// NoDataBody is a document without a data key.
const NoDataBody = `{"detail":"no data for the requested range"}`

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
