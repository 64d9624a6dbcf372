package models

import (
	"math"
	"strconv"
	"time"

	"github.com/julianstephens/studyplanner/internal/docstore"
)

func stringField(f docstore.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}

func numberField(f docstore.Fields, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// timeField accepts the store's timestamp string, a time value, epoch
// seconds, or an imported {"seconds": n} object.
func timeField(f docstore.Fields, key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(docstore.TimestampLayout, v)
		if err != nil {
			return time.Time{}
		}
		return t
	case float64:
		if v <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(v), 0).UTC()
	case map[string]any:
		secs, _ := v["seconds"].(float64)
		nanos, _ := v["nanoseconds"].(float64)
		if secs <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(secs), int64(nanos)).UTC()
	}
	return time.Time{}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
