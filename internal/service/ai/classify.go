package ai

import (
	stderrors "errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/kapu/phantom-panel/pkg/errors"
)

var (
	statusPattern     = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodePattern = regexp.MustCompile(`"code":\s*(\d{3})`)
	openaiCodePattern = regexp.MustCompile(`^(\d{3})\s`)
)

// classifyError turns a provider failure into an APIError carrying the best
// status code we can recover from the SDK error or its message.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return err
	}
	return errors.NewAPIError(provider+" request failed", provider, statusCodeOf(err), err)
}

func statusCodeOf(err error) int {
	var oaErr *openai.Error
	if stderrors.As(err, &oaErr) && oaErr.StatusCode > 0 {
		return oaErr.StatusCode
	}
	var gErr *genai.APIError
	if stderrors.As(err, &gErr) && gErr.Code > 0 {
		return gErr.Code
	}

	if isRateLimitMessage(err.Error()) {
		return http.StatusTooManyRequests
	}
	if code := codeFromMessage(err.Error()); code > 0 {
		return code
	}
	return 0
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func codeFromMessage(msg string) int {
	for _, re := range []*regexp.Regexp{geminiCodePattern, openaiCodePattern} {
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			if code, err := strconv.Atoi(matches[1]); err == nil {
				return code
			}
		}
	}
	if matches := statusPattern.FindStringSubmatch(msg); len(matches) > 1 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code
		}
	}
	return 0
}

// isServiceFailure reports failures that say the provider itself is unhealthy:
// timeouts, rate limits and 5xx. Those feed the circuit breaker.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	code := codeFromMessage(msg)
	return isRateLimitMessage(msg) || (code >= 500 && code < 600)
}

func isRateLimitError(err error) bool {
	return errors.IsRetryable(err)
}
