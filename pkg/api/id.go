package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	requestIDPrefix = "req_"
	recordIDPrefix  = "rlog_"
)

var (
	requestIDPattern = regexp.MustCompile(`^req_[a-zA-Z0-9]{24}$`)
	recordIDPattern  = regexp.MustCompile(`^rlog_[a-zA-Z0-9]{24}$`)
)

// NewRequestID generates a new request ID with the "req_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewRequestID() string {
	return requestIDPrefix + randomAlphanumeric(idLength)
}

// NewRecordID generates a request-log record ID ("rlog_" + 24 characters).
func NewRecordID() string {
	return recordIDPrefix + randomAlphanumeric(idLength)
}

// ValidateRequestID checks whether the given string is a valid request ID.
func ValidateRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// ValidateRecordID checks whether the given string is a valid record ID.
func ValidateRecordID(id string) bool {
	return recordIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
