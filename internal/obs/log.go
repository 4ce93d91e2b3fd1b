package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared JSON-line logger. Request, audit and workflow
// events all flow through it so the service stays single-stream on stdout.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON line for a handled HTTP request. When the
// caller did not set a level, one is derived from the response status.
func LogRequest(entry map[string]any) {
	if _, ok := entry["level"]; !ok {
		entry["level"] = levelForStatus(entry["status"])
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

func levelForStatus(v any) string {
	status, ok := v.(int)
	switch {
	case ok && status >= 500:
		return "error"
	case ok && status >= 400:
		return "warn"
	default:
		return "info"
	}
}
