package logx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

// Formatter is the interface for log formatters
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry represents a single log entry
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Data      any
	Error     error
	Timestamp time.Time
	Caller    string
}

// Fields is a map of structured data
type Fields map[string]any

// errorCode returns the registry code and type of a classified error, or
// empty strings for anything else.
func errorCode(err error) (code, typ string) {
	var e *errx.Error
	if !errors.As(err, &e) {
		return "", ""
	}
	return e.Code, e.Type.String()
}

func formatTimestamp(t time.Time, format string) string {
	switch format {
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	case "unixmilli":
		return fmt.Sprintf("%d", t.UnixMilli())
	default:
		return t.Format(format)
	}
}

func prettyJSON(data any) string {
	if data == nil {
		return ""
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(bytes)
}
