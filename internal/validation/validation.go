// Package validation provides input validation middleware and helpers
// for the bridge API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (4MB); catalogue
// shorthand bodies carry full seller catalogues.
const MaxRequestSize = 4 << 20

// transactionIDRegex bounds what we accept as a transaction id path
// parameter: the ids we generate plus common UUID/slug formats.
var transactionIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidTransactionID checks a transaction id path parameter.
func IsValidTransactionID(id string) bool {
	return transactionIDRegex.MatchString(id)
}

// SanitizeString trims whitespace, limits length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// TransactionParamMiddleware validates the :transactionId URL parameter
// on routes that use it, rejecting malformed ids before any store lookup.
func TransactionParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("transactionId")
		if id != "" && !IsValidTransactionID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "transactionId must be an opaque id of at most 128 characters",
				},
			})
			return
		}
		c.Next()
	}
}

// ValidAmount checks a decimal money string (positive, at most one
// decimal point).
func ValidAmount(value string) bool {
	if value == "" {
		return false
	}
	decimalCount := 0
	hasNonZero := false
	for i, c := range value {
		if c == '.' {
			decimalCount++
			if decimalCount > 1 || i == 0 || i == len(value)-1 {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		if c != '0' {
			hasNonZero = true
		}
	}
	return hasNonZero
}
