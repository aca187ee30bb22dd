// Package errors provides structured error types for monorel.
// Every failure carries a Kind (the category) and, for the failures callers
// branch on, a Code naming the exact variant.
package errors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindInput indicates invalid user or configuration input.
	KindInput
	// KindState indicates the workspace or store is inconsistent.
	KindState
	// KindDetection indicates nothing actionable was detected.
	KindDetection
	// KindIO indicates a filesystem failure.
	KindIO
	// KindExternal indicates an external collaborator (git, registry) is unavailable.
	KindExternal
	// KindParse indicates malformed input data that is not fatal on its own.
	KindParse
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindConflict indicates a resource already exists.
	KindConflict
	// KindTemplate indicates a template could not be rendered.
	KindTemplate
	// KindCanceled indicates the operation was canceled.
	KindCanceled
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindState:
		return "state"
	case KindDetection:
		return "detection"
	case KindIO:
		return "io"
	case KindExternal:
		return "external"
	case KindParse:
		return "parse"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTemplate:
		return "template"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code names a specific failure variant.
type Code string

const (
	CodeInvalidVersion           Code = "invalid_version"
	CodeUnsatisfiableRequirement Code = "unsatisfiable_requirement"
	CodeInvalidStrategy          Code = "invalid_strategy"
	CodeInvalidBranch            Code = "invalid_branch"
	CodeInvalidEnvironment       Code = "invalid_environment"
	CodeInvalidConfig            Code = "invalid_config"
	CodeDowngrade                Code = "downgrade"
	CodeWorkspaceInconsistent    Code = "workspace_inconsistent"
	CodeChangesetExists          Code = "changeset_exists"
	CodeChangesetNotFound        Code = "changeset_not_found"
	CodeNoChanges                Code = "no_changes"
	CodeManifestNotFound         Code = "manifest_not_found"
	CodeManifestParse            Code = "manifest_parse"
	CodeManifestWrite            Code = "manifest_write"
	CodeNameMissing              Code = "name_missing"
	CodeVersionInvalid           Code = "version_invalid"
	CodeAtomicWriteFailed        Code = "atomic_write_failed"
	CodeChangelogWriteFailed     Code = "changelog_write_failed"
	CodeTemplateInvalid          Code = "template_invalid"
	CodeGitUnavailable           Code = "git_unavailable"
	CodeRegistryUnavailable      Code = "registry_unavailable"
	CodeNotConventional          Code = "not_conventional"
	CodeCanceled                 Code = "canceled"
)

// Error is the standard error type for monorel.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Code is the variant of the error, if one applies.
	Code Code
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Recoverable indicates the caller may downgrade the failure to a warning.
	Recoverable bool
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Code != "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// Sentinels carrying a Code match any error with the same Code.
// Sentinels without Op or Code match by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidVersion           = &Error{Kind: KindInput, Code: CodeInvalidVersion}
	ErrUnsatisfiableRequirement = &Error{Kind: KindInput, Code: CodeUnsatisfiableRequirement}
	ErrInvalidStrategy          = &Error{Kind: KindInput, Code: CodeInvalidStrategy}
	ErrInvalidBranch            = &Error{Kind: KindInput, Code: CodeInvalidBranch}
	ErrInvalidEnvironment       = &Error{Kind: KindInput, Code: CodeInvalidEnvironment}
	ErrInvalidConfig            = &Error{Kind: KindInput, Code: CodeInvalidConfig}
	ErrDowngrade                = &Error{Kind: KindInput, Code: CodeDowngrade}
	ErrWorkspaceInconsistent    = &Error{Kind: KindState, Code: CodeWorkspaceInconsistent}
	ErrChangesetExists          = &Error{Kind: KindConflict, Code: CodeChangesetExists}
	ErrChangesetNotFound        = &Error{Kind: KindNotFound, Code: CodeChangesetNotFound}
	ErrNoChanges                = &Error{Kind: KindDetection, Code: CodeNoChanges}
	ErrManifestNotFound         = &Error{Kind: KindNotFound, Code: CodeManifestNotFound}
	ErrManifestParse            = &Error{Kind: KindParse, Code: CodeManifestParse}
	ErrManifestWrite            = &Error{Kind: KindIO, Code: CodeManifestWrite}
	ErrNameMissing              = &Error{Kind: KindParse, Code: CodeNameMissing}
	ErrVersionInvalid           = &Error{Kind: KindParse, Code: CodeVersionInvalid}
	ErrAtomicWriteFailed        = &Error{Kind: KindIO, Code: CodeAtomicWriteFailed}
	ErrChangelogWriteFailed     = &Error{Kind: KindIO, Code: CodeChangelogWriteFailed}
	ErrTemplateInvalid          = &Error{Kind: KindTemplate, Code: CodeTemplateInvalid}
	ErrGitUnavailable           = &Error{Kind: KindExternal, Code: CodeGitUnavailable}
	ErrRegistryUnavailable      = &Error{Kind: KindExternal, Code: CodeRegistryUnavailable}
	ErrNotConventional          = &Error{Kind: KindParse, Code: CodeNotConventional}
)

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Newf creates a new Error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, op string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Coded creates an error for a specific variant. The Kind and recoverability
// are taken from the variant's sentinel.
func Coded(code Code, op, format string, args ...any) *Error {
	e := &Error{
		Kind:    kindOf(code),
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
	e.Recoverable = e.Kind == KindExternal || e.Kind == KindParse
	return e
}

// CodedWrap is Coded with an underlying cause.
func CodedWrap(err error, code Code, op, format string, args ...any) *Error {
	e := Coded(code, op, format, args...)
	e.Err = err
	return e
}

func kindOf(code Code) Kind {
	for _, s := range sentinels {
		if s.Code == code {
			return s.Kind
		}
	}
	if code == CodeCanceled {
		return KindCanceled
	}
	return KindUnknown
}

var sentinels = []*Error{
	ErrInvalidVersion, ErrUnsatisfiableRequirement, ErrInvalidStrategy, ErrInvalidBranch,
	ErrInvalidEnvironment, ErrInvalidConfig, ErrDowngrade, ErrWorkspaceInconsistent,
	ErrChangesetExists, ErrChangesetNotFound, ErrNoChanges, ErrManifestNotFound,
	ErrManifestParse, ErrManifestWrite, ErrNameMissing, ErrVersionInvalid,
	ErrAtomicWriteFailed, ErrChangelogWriteFailed, ErrTemplateInvalid, ErrGitUnavailable,
	ErrRegistryUnavailable, ErrNotConventional,
}

// E is a convenience function to create errors with various arguments.
// Arguments can be of type Kind, Code, string (operation, then message),
// error, map[string]any (details) or bool (recoverable).
func E(args ...any) *Error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case Code:
			e.Code = a
			if e.Kind == KindUnknown {
				e.Kind = kindOf(a)
			}
		case string:
			if e.Op == "" {
				e.Op = a
			} else if e.Message == "" {
				e.Message = a
			}
		case *Error:
			e.Err = a
			if e.Kind == KindUnknown {
				e.Kind = a.Kind
			}
		case error:
			e.Err = a
		case map[string]any:
			e.Details = a
		case bool:
			e.Recoverable = a
		}
	}
	return e
}

// GetKind returns the Kind of an error.
// If the error is not an *Error, it returns KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetCode returns the first Code found in the error chain.
func GetCode(err error) Code {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Code != "" {
			return e.Code
		}
		err = e.Err
	}
	return ""
}

// IsRecoverable returns true if the error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Validation creates an input error.
func Validation(op, message string) *Error {
	return &Error{
		Kind:        KindInput,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Message: message,
	}
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// GitWrap wraps an error as a recoverable git unavailability.
func GitWrap(err error, op, message string) *Error {
	e := CodedWrap(err, CodeGitUnavailable, op, "%s", message)
	return e
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{
		Kind:    KindInternal,
		Op:      op,
		Message: message,
	}
}

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNoChanges    = 2
	ExitInvalidInput = 3
	ExitInconsistent = 4
	ExitCanceled     = 130
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) || IsKind(err, KindCanceled) {
		return ExitCanceled
	}
	switch GetCode(err) {
	case CodeNoChanges:
		return ExitNoChanges
	case CodeDowngrade, CodeInvalidStrategy:
		return ExitInvalidInput
	case CodeWorkspaceInconsistent:
		return ExitInconsistent
	}
	return ExitFailure
}

// Sensitive data redaction patterns for registry and git credentials.
var sensitivePatterns = []*regexp.Regexp{
	// npm automation and publish tokens
	regexp.MustCompile(`\bnpm_[a-zA-Z0-9]{36,}\b`),
	// GitHub tokens: ghp_..., gho_..., ghs_..., ghr_...
	regexp.MustCompile(`\bgh[posh]_[a-zA-Z0-9]{36,}\b`),
	// GitLab personal access tokens
	regexp.MustCompile(`\bglpat-[a-zA-Z0-9_-]{20,}\b`),
	// Generic bearer tokens
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_.-]{20,}\b`),
	// Basic auth with password in URL
	regexp.MustCompile(`://[^:/]+:[^@/]+@`),
}

// RedactSensitive removes credentials from an error message.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// RedactError creates a new error with sensitive data redacted from its message.
// If the error is nil, returns nil.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}

// WrapSafe wraps an error with sensitive data redacted.
func WrapSafe(err error, kind Kind, op, message string) *Error {
	if err == nil {
		return &Error{
			Kind:    kind,
			Op:      op,
			Message: message,
		}
	}
	return Wrap(RedactError(err), kind, op, message)
}
