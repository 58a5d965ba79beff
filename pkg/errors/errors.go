package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeConflict   Code = "CONFLICT"
	CodeNotFound   Code = "NOT_FOUND"
	CodeDependency Code = "DEPENDENCY_ERROR"
	CodeCorruption Code = "STORAGE_CORRUPTION"
	CodeInternal   Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable      bool
	UserFacing     bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		UserFacing:     true,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeConflict: {
		Retryable:      false,
		UserFacing:     true,
		PublicMessage:  "conflict detected",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		Retryable:      false,
		UserFacing:     true,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeDependency: {
		Retryable:      true,
		UserFacing:     false,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeCorruption: {
		Retryable:      false,
		UserFacing:     false,
		PublicMessage:  "stored state unreadable",
		DetailsAllowed: true,
	},
	CodeInternal: {
		Retryable:      true,
		UserFacing:     false,
		PublicMessage:  "internal error",
		DetailsAllowed: false,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
