package provider

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// TaskInfo is the provider's view of a generation task.
type TaskInfo struct {
	TaskID     string
	Platform   string
	Action     string
	RawStatus  string
	Status     Status
	Progress   int
	FailReason string
	SubmitTime time.Time
	StartTime  time.Time
	FinishTime time.Time
	Cost       *float64
	VideoURL   string
}

var videoURLPaths = []string{
	"video_url",
	"videoUrl",
	"url",
	"data.video_url",
	"data.videoUrl",
	"data.url",
	"data.output",
	"data.output.url",
	"data.output.video_url",
	"data.output.videoUrl",
}

var progressNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseTask reads a create or status response body. Unknown shapes yield a
// pending TaskInfo without an id.
func ParseTask(body []byte) TaskInfo {
	info := TaskInfo{Status: StatusPending}
	if !gjson.ValidBytes(body) {
		return info
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return info
	}

	info.TaskID = firstString(root, "task_id", "taskId", "id")
	info.Platform = firstString(root, "platform")
	info.Action = firstString(root, "action")
	info.RawStatus = firstString(root, "status")
	info.Status = NormalizeStatus(info.RawStatus)
	info.Progress = parseProgress(root.Get("progress"))
	info.FailReason = firstString(root, "fail_reason", "failReason", "error", "detail")
	info.SubmitTime = parseEpoch(root.Get("submit_time"))
	info.StartTime = parseEpoch(root.Get("start_time"))
	info.FinishTime = parseEpoch(root.Get("finish_time"))
	if cost := root.Get("cost"); cost.Type == gjson.Number {
		v := cost.Float()
		info.Cost = &v
	}
	info.VideoURL = extractVideoURL(root)

	if info.VideoURL != "" && info.Progress >= 100 &&
		info.Status != StatusFailed && info.Status != StatusCancelled {
		info.Status = StatusCompleted
	}
	return info
}

func firstString(root gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := root.Get(path)
		var s string
		switch v.Type {
		case gjson.String, gjson.Number:
			s = v.String()
		case gjson.JSON:
			s = v.Raw
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func parseProgress(v gjson.Result) int {
	var value float64
	switch v.Type {
	case gjson.Number:
		value = v.Float()
	case gjson.String:
		match := progressNumber.FindString(v.String())
		if match == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0
		}
		value = parsed
	default:
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, value))))
}

const maxEpochMillis = float64(math.MaxInt64 / 1e6)

func parseEpoch(v gjson.Result) time.Time {
	var value float64
	switch v.Type {
	case gjson.Number:
		value = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return time.Time{}
		}
		value = parsed
	default:
		return time.Time{}
	}
	if value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return time.Time{}
	}
	if value < 1e10 {
		value *= 1000
	}
	// beyond this the millisecond count no longer fits in UnixNano
	if value >= maxEpochMillis {
		return time.Time{}
	}
	return time.UnixMilli(int64(value))
}

func extractVideoURL(root gjson.Result) string {
	for _, path := range videoURLPaths {
		v := root.Get(path)
		if v.Type != gjson.String {
			continue
		}
		candidate := strings.TrimSpace(v.String())
		lower := strings.ToLower(candidate)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return candidate
		}
	}
	return ""
}
