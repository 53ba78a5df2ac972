package extract

import "fmt"

// ErrValidation is returned for bad caller input: an unsupported media type,
// a missing file, or an oversized file. Validation happens before any
// backend or subprocess is touched.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("extract: %s", e.Reason)
}

// ErrMissingDependency is returned when a required external tool is absent
// or too old. Terminal for the process lifetime: retrying cannot succeed
// until the environment is fixed.
type ErrMissingDependency struct {
	Tool   string
	Reason string
}

func (e *ErrMissingDependency) Error() string {
	return fmt.Sprintf("extract: %s", e.Reason)
}

// ErrParsing is returned when a backend cannot process input of its claimed
// media type.
type ErrParsing struct {
	Format string
	Reason string
	Cause  error
}

func (e *ErrParsing) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extract: %s (%s): %v", e.Reason, e.Format, e.Cause)
	}
	return fmt.Sprintf("extract: %s (%s)", e.Reason, e.Format)
}

func (e *ErrParsing) Unwrap() error { return e.Cause }

// ErrOCR is returned when the OCR subprocess fails or cannot run. Stderr
// carries the tool's captured diagnostic output when available.
type ErrOCR struct {
	Reason string
	Stderr string
	Cause  error
}

func (e *ErrOCR) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("extract: %s: %s", e.Reason, e.Stderr)
	}
	if e.Cause != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("extract: %s", e.Reason)
}

func (e *ErrOCR) Unwrap() error { return e.Cause }
