package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the severity of a security event. Levels are totally ordered:
// INFO < WARNING < ERROR < CRITICAL.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "INFO":
		*l = LevelInfo
	case "WARNING":
		*l = LevelWarning
	case "ERROR":
		*l = LevelError
	case "CRITICAL":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown audit level %q", s)
	}
	return nil
}

// Event is one security audit record. Events are write-once and
// append-only; the field shape is a wire contract for log consumers.
type Event struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	EventType string         `json:"event_type"`
	ClientID  string         `json:"client_id"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Auditor appends security events to its configured sinks: an append-only
// JSON-lines file, the console (through slog), and optionally a database
// table. Auditing is best-effort: a sink failure is reported on the
// fallback logger and swallowed, never failing the request being audited.
type Auditor struct {
	mu       sync.Mutex
	filePath string
	console  bool
	minLevel Level
	logger   *slog.Logger
	db       *auditDB
}

// NewAuditor builds an auditor. filePath may be empty for no file sink;
// console enables the slog sink; events below minLevel are dropped.
func NewAuditor(filePath string, console bool, minLevel Level, logger *slog.Logger) (*Auditor, error) {
	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}
	return &Auditor{
		filePath: filePath,
		console:  console,
		minLevel: minLevel,
		logger:   logger,
	}, nil
}

// WithDatabase attaches a relational sink; see auditdb.go.
func (a *Auditor) WithDatabase(db *auditDB) *Auditor {
	a.db = db
	return a
}

// LogEvent appends one event to every configured sink if its level clears
// the auditor's minimum.
func (a *Auditor) LogEvent(level Level, eventType, clientID, message, endpoint string, details map[string]any) {
	if level < a.minLevel {
		return
	}

	event := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		EventType: eventType,
		ClientID:  clientID,
		Endpoint:  endpoint,
		Message:   message,
		Details:   details,
	}
	a.write(event)
}

func (a *Auditor) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("failed to encode security event", "error", err)
		return
	}

	if a.filePath != "" {
		a.mu.Lock()
		if err := appendLine(a.filePath, line); err != nil {
			a.logger.Error("failed to write security log", "error", err)
		}
		a.mu.Unlock()
	}

	if a.console {
		a.logger.Log(context.Background(), slogLevel(event.Level), event.Message,
			"event_type", event.EventType,
			"client_id", event.ClientID,
			"endpoint", event.Endpoint,
		)
	}

	if a.db != nil {
		if err := a.db.insert(event); err != nil {
			a.logger.Error("failed to write security event to database", "error", err)
		}
	}
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// The wrappers below fix the event_type, level, and message shape for the
// scenarios the rest of the service reports. Downstream log consumers
// match on these shapes; do not reword them casually.

func (a *Auditor) LogAuthFailure(clientID, reason, endpoint string) {
	a.LogEvent(LevelWarning, "auth_failure", clientID,
		fmt.Sprintf("Authentication failed: %s", reason), endpoint,
		map[string]any{"reason": reason})
}

func (a *Auditor) LogAuthSuccess(clientID, user, endpoint string) {
	if user == "" {
		user = "unknown"
	}
	a.LogEvent(LevelInfo, "auth_success", clientID,
		fmt.Sprintf("Authentication successful for %s", user), endpoint,
		map[string]any{"user": user})
}

func (a *Auditor) LogRateLimit(clientID, endpoint string, limit, window int) {
	a.LogEvent(LevelWarning, "rate_limit_exceeded", clientID,
		fmt.Sprintf("Rate limit exceeded: %d requests per %ds", limit, window), endpoint,
		map[string]any{"limit": limit, "window": window})
}

func (a *Auditor) LogSanitizationFailure(clientID, inputType, reason, endpoint string) {
	a.LogEvent(LevelError, "sanitization_failure", clientID,
		fmt.Sprintf("Input sanitization failed for %s: %s", inputType, reason), endpoint,
		map[string]any{"input_type": inputType, "reason": reason})
}

func (a *Auditor) LogSuspiciousPattern(clientID, patternType, description, endpoint string) {
	a.LogEvent(LevelError, "suspicious_pattern", clientID,
		fmt.Sprintf("Suspicious %s pattern detected: %s", patternType, description), endpoint,
		map[string]any{"pattern_type": patternType, "description": description})
}

func (a *Auditor) LogPermissionDenied(clientID, resource, action, endpoint string) {
	a.LogEvent(LevelWarning, "permission_denied", clientID,
		fmt.Sprintf("Permission denied: %s on %s", action, resource), endpoint,
		map[string]any{"resource": resource, "action": action})
}

func (a *Auditor) LogTokenRevoked(clientID, reason, tokenID string) {
	a.LogEvent(LevelInfo, "token_revoked", clientID,
		fmt.Sprintf("Token revoked: %s", reason), "",
		map[string]any{"reason": reason, "token_id": tokenID})
}

func (a *Auditor) LogCriticalEvent(clientID, description, endpoint string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["description"] = description
	a.LogEvent(LevelCritical, "critical_security_event", clientID,
		fmt.Sprintf("CRITICAL: %s", description), endpoint, details)
}
