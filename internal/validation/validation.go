// Package validation provides input validation helpers for the Chorebay API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxNotesLength is the maximum length for free-text fields (dispute reasons, notes)
const MaxNotesLength = 2000

// idRegex validates internal IDs: a short prefix, underscore, hex tail
// (e.g. chr_a1b2..., pay_..., dsp_...).
var idRegex = regexp.MustCompile(`^[a-z]{2,6}_[a-f0-9]{8,32}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks if a string looks like an internal prefixed ID.
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// IsValidAmount checks a money amount in integer minor units.
// Zero and negative amounts are never valid; the cap guards against
// fat-finger inputs corrupting escrow totals.
const maxAmountMinorUnits = 100_000_000 // 10 lakh in paise

func IsValidAmount(amount int64) bool {
	return amount > 0 && amount <= maxAmountMinorUnits
}

// SanitizeString trims whitespace, strips null bytes, and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
