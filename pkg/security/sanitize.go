package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// SanitizationError reports user input that failed cleaning. It maps to a
// 400 at the boundary and is also forwarded to the auditor there.
// PatternType is set when the failure was an injection pattern hit, so
// the boundary can additionally raise a suspicious_pattern event.
type SanitizationError struct {
	InputType   string
	Reason      string
	PatternType string
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("sanitization failed for %s: %s", e.InputType, e.Reason)
}

var (
	allowedChartTypes = map[string]struct{}{"line": {}, "scatter": {}, "bar": {}}
	allowedFormats    = map[string]struct{}{"png": {}, "jpg": {}, "jpeg": {}, "svg": {}, "pdf": {}}
	allowedThemes     = map[string]struct{}{"light": {}, "dark": {}, "bizlight": {}, "bizdark": {}}

	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE)\b`),
		regexp.MustCompile(`--|#|/\*|\*/`),
		regexp.MustCompile(`(?i)\bUNION\b.*\bSELECT\b`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)onerror\s*=`),
		regexp.MustCompile(`(?i)onload\s*=`),
		regexp.MustCompile(`(?i)onclick\s*=`),
	}
)

// Sanitizer cleans boundary input before it reaches rendering or storage.
// Stateless; one instance can serve every request.
type Sanitizer struct{}

func NewSanitizer() *Sanitizer { return &Sanitizer{} }

func (s *Sanitizer) ChartType(chartType string) (string, error) {
	chartType = strings.ToLower(strings.TrimSpace(chartType))
	if _, ok := allowedChartTypes[chartType]; !ok {
		return "", &SanitizationError{InputType: "chart_type", Reason: fmt.Sprintf("invalid chart type: %s", chartType)}
	}
	return chartType, nil
}

func (s *Sanitizer) Format(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if _, ok := allowedFormats[format]; !ok {
		return "", &SanitizationError{InputType: "format", Reason: fmt.Sprintf("invalid format: %s", format)}
	}
	return format, nil
}

func (s *Sanitizer) Theme(theme string) (string, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if _, ok := allowedThemes[theme]; !ok {
		return "", &SanitizationError{InputType: "theme", Reason: fmt.Sprintf("invalid theme: %s", theme)}
	}
	return theme, nil
}

// String rejects oversized input and anything matching the SQL or XSS
// pattern lists, then trims surrounding whitespace.
func (s *Sanitizer) String(text string, maxLength int) (string, error) {
	if len(text) > maxLength {
		return "", &SanitizationError{InputType: "string", Reason: fmt.Sprintf("string too long: %d > %d", len(text), maxLength)}
	}
	for _, p := range sqlPatterns {
		if p.MatchString(text) {
			return "", &SanitizationError{InputType: "string", Reason: "suspicious SQL pattern detected", PatternType: "sql_injection"}
		}
	}
	for _, p := range xssPatterns {
		if p.MatchString(text) {
			return "", &SanitizationError{InputType: "string", Reason: "suspicious XSS pattern detected", PatternType: "xss"}
		}
	}
	return strings.TrimSpace(text), nil
}

// ForSVG cleans text destined for SVG output. SVG can carry script, so the
// result is additionally entity-escaped.
func (s *Sanitizer) ForSVG(text string) (string, error) {
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	cleaned, err := s.String(text, 500)
	if err != nil {
		return "", err
	}
	return html.EscapeString(cleaned), nil
}

// NumericRange rejects values outside [min, max].
func (s *Sanitizer) NumericRange(value, min, max float64) error {
	if value < min || value > max {
		return &SanitizationError{InputType: "numeric", Reason: fmt.Sprintf("value %g outside range [%g, %g]", value, min, max)}
	}
	return nil
}
