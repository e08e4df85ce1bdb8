// Package validation checks request input before it reaches the services.
package validation

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/amount"
)

const (
	// MaxRequestSize caps request bodies at 64 KiB; no endpoint takes more.
	MaxRequestSize = 64 << 10
	// MaxReasonLength bounds free-text fields such as dispute reasons and notes.
	MaxReasonLength = 1000
)

var (
	// asset and network codes: USDT, TRC20, BEP20
	codeRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)
	// ISO 4217 style fiat codes
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
	// prefixed record IDs: ofr_, trd_, wal_, ent_ + 32 hex
	idRegex = regexp.MustCompile(`^[a-z]{3}_[0-9a-f]{32}$`)
)

// RequestSizeMiddleware rejects bodies declared larger than maxSize with
// 413 and caps the reader for bodies that lie about their length.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request_too_large",
				"message": fmt.Sprintf("Request body exceeds %d bytes", maxSize),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCode checks an asset or network code
func IsValidCode(s string) bool {
	return codeRegex.MatchString(s)
}

// IsValidID checks a prefixed record ID
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// SanitizeString trims s, drops control characters other than newline and
// tab, and truncates to at most maxLen bytes without splitting a rune.
func SanitizeString(s string, maxLen int) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every rejected field of a request.
type ValidationErrors []ValidationError

// Error reports the first failure.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Rule checks one field; nil means it passed.
type Rule func() *ValidationError

// Validate runs every rule and returns all failures.
func Validate(rules ...Rule) ValidationErrors {
	var errs ValidationErrors
	for _, rule := range rules {
		if err := rule(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) Rule {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidCode checks an asset or network code. Empty passes; use Required.
func ValidCode(field, value string) Rule {
	return func() *ValidationError {
		if value != "" && !IsValidCode(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be 1-16 letters or digits"}
		}
		return nil
	}
}

// ValidCurrency checks a three-letter fiat currency code.
func ValidCurrency(field, value string) Rule {
	return func() *ValidationError {
		if value != "" && !currencyRegex.MatchString(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be a three-letter currency code"}
		}
		return nil
	}
}

// MaxLength limits a field to max bytes.
func MaxLength(field, value string, max int) Rule {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: fmt.Sprintf("exceeds %d characters", max)}
		}
		return nil
	}
}

// ValidAmount applies the ledger's amount rules: a plain positive decimal
// with at most amount.MaxScale fractional digits. Empty passes.
func ValidAmount(field, value string) Rule {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if _, err := amount.ParsePositive(value); err != nil {
			return &ValidationError{Field: field, Message: err.Error()}
		}
		return nil
	}
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("id"); id != "" && !IsValidID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be a prefixed record id (e.g. trd_ + 32 hex chars)",
			})
			return
		}
		c.Next()
	}
}
