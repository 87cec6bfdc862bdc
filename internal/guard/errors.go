package guard

import (
	"fmt"
	"strings"
)

// BlockedContentError is returned when secret-family rules match. It is
// fatal to the specific write being attempted - the caller must not persist
// the content - but never fatal to the process.
type BlockedContentError struct {
	Warnings  []string
	RuleNames []string
}

func (e *BlockedContentError) Error() string {
	return fmt.Sprintf("content blocked by security scan: %s", strings.Join(e.Warnings, "; "))
}

// MalformedInputError reports input that is not scannable text. The library
// API makes the non-string case unrepresentable, so this surfaces at decode
// boundaries (e.g. a JSON body whose content field is not a string) and is
// treated as a programmer error: loud, never silently coerced.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed scan input: %s", e.Reason)
}
