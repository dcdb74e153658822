// =============================================================================
// CTe/NFe Key Linker - Key Validator
// =============================================================================
//
// This module validates the fiscal keys captured by the grammar.
//
// KEY LAYOUT (44 digits):
//
//   digits  1-20 : state, emission date, issuer CNPJ
//   digits 21-22 : document-type code ("55" = NFe, "57" = CTe)
//   digits 23-44 : series, number, emission type, code, check digit
//
// VALIDATION STEPS:
//   1. Remove every non-digit character
//   2. Require exactly KeyLength digits
//   3. Read the code at [CodeOffset, CodeOffset+CodeLength)
//   4. Require the code to equal the expected code
//
// ERROR HANDLING:
//   A failure is a *ValidationError carrying the file path, the normalized
//   digits, the code found and the code expected. The extractor aborts the
//   whole document on the first failure.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"
)

// =============================================================================
// KEY CONSTANTS
// =============================================================================

const (
	// KeyLength is the number of digits in a fiscal key.
	KeyLength = 44

	// CodeOffset is the 0-indexed digit offset of the document-type code.
	CodeOffset = 20

	// CodeLength is the number of digits in the document-type code.
	CodeLength = 2

	// CodeNFe identifies an invoice key.
	CodeNFe = "55"

	// CodeCTe identifies a transport-document key.
	CodeCTe = "57"
)

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// Reason tells which rule a key broke.
type Reason string

const (
	ReasonLength Reason = "length"
	ReasonCode   Reason = "code"
)

// ValidationError describes a malformed fiscal key.
type ValidationError struct {
	// Path is the file the key was found in.
	Path string

	// Key is the digit-only form of the raw key text.
	Key string

	// FoundCode is the code at CodeOffset, or "" when the key is too short
	// to hold one.
	FoundCode string

	// ExpectedCode is the code required for the key family.
	ExpectedCode string

	// Reason is the rule that failed.
	Reason Reason
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Reason == ReasonLength {
		return fmt.Sprintf("invalid fiscal key in <%s>: key '%s' has %d digits, want %d (code = %s, expected %s)",
			e.Path, e.Key, len(e.Key), KeyLength, e.FoundCode, e.ExpectedCode)
	}
	return fmt.Sprintf("invalid fiscal key in <%s>: key '%s' has code = %s, expected %s",
		e.Path, e.Key, e.FoundCode, e.ExpectedCode)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateKey normalizes raw to digits and checks its length and embedded
// document-type code.
//
// PARAMETERS:
//   - path: The file the key came from (reported on failure).
//   - raw: The matched key text, possibly with separators.
//   - expectedCode: CodeCTe or CodeNFe.
//
// RETURNS:
//   - The normalized 44-digit key.
//   - A *ValidationError if the key is malformed.
func ValidateKey(path, raw, expectedCode string) (string, error) {
	key := DigitsOnly(raw)
	code := codeOf(key)

	if len(key) != KeyLength {
		return "", &ValidationError{
			Path:         path,
			Key:          key,
			FoundCode:    code,
			ExpectedCode: expectedCode,
			Reason:       ReasonLength,
		}
	}

	if code != expectedCode {
		return "", &ValidationError{
			Path:         path,
			Key:          key,
			FoundCode:    code,
			ExpectedCode: expectedCode,
			Reason:       ReasonCode,
		}
	}

	return key, nil
}

// DigitsOnly removes every character that is not an ASCII digit.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// codeOf returns the document-type code of a digit-only key, or "" when the
// key is too short to contain one.
func codeOf(key string) string {
	if len(key) < CodeOffset+CodeLength {
		return ""
	}
	return key[CodeOffset : CodeOffset+CodeLength]
}
