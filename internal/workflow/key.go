package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// KeyLength is the length of a valid external access key.
	KeyLength = 44

	subIdentifierOffset = 6
	subIdentifierLength = 14
)

// DeriveSubIdentifier extracts the 14-digit entity identifier (the issuer's
// CNPJ) at offset 6 of a 44-character access key.
func DeriveSubIdentifier(key string) (string, error) {
	if n := utf8.RuneCountInString(key); n != KeyLength {
		return "", &MalformedKeyError{Key: key, Reason: fmt.Sprintf("length %d, want %d", n, KeyLength)}
	}
	if len(key) != KeyLength {
		return "", &MalformedKeyError{Key: key, Reason: "contains non-ASCII characters"}
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", &MalformedKeyError{Key: key, Reason: "contains path separators"}
	}
	sub := key[subIdentifierOffset : subIdentifierOffset+subIdentifierLength]
	for _, r := range sub {
		if r < '0' || r > '9' {
			return "", &MalformedKeyError{Key: key, Reason: fmt.Sprintf("entity identifier %q is not numeric", sub)}
		}
	}
	return sub, nil
}
