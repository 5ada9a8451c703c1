package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the configured size limit
//	          Patterns: "file too large"
//
//	FILE002 - Legacy workbook: .xls workbooks are not supported
//	          Action: Save the file as .xlsx and upload again
//	          Patterns: "legacy .xls"
//
//	FILE003 - Unreadable workbook: File is not a valid xlsx workbook
//	          Patterns: "unreadable workbook"
//
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//
// # Sheet Errors (SHEET001-SHEET099)
//
//	SHEET001 - Sheet not found: The requested sheet does not exist
//	           Action: Pick one of the sheets listed in the message
//	           Patterns: "sheet not found"
//
//	SHEET002 - No header: The sheet has no header row
//	           Patterns: "no header row"
//
//	SHEET003 - No data: No data rows follow the header
//	           Patterns: "no data rows"
//
// # Task Errors (TASK001-TASK099)
//
//	TASK001 - Unknown task: No template is registered for the task
//	          Patterns: "unknown task"
//
//	TASK002 - Invalid template: The task template could not be compiled
//	          Patterns: "compile task", "invalid template"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Check failed: A check could not be evaluated for a cell
//	         Patterns: "validation failed"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: Too many validations in progress
//	         Patterns: "too many concurrent"
//
//	RUN002 - Run expired: Validation run not found
//	         Patterns: "run not found"
//
//	RUN003 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	RUN004 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check
// application logs for the original technical error.
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the workbook into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "legacy .xls",
		msg: UserMessage{
			Message: "Legacy .xls workbooks are not supported",
			Action:  "Save the file as .xlsx and upload again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unreadable workbook",
		msg: UserMessage{
			Message: "File is not a valid xlsx workbook",
			Action:  "Open the file in a spreadsheet program and save it as .xlsx",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an xlsx file to validate",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a workbook with data rows",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Sheet Errors (SHEET001-SHEET003)
	// =========================================================================
	{
		pattern: "sheet not found",
		msg: UserMessage{
			Message: "The requested sheet does not exist",
			Action:  "Pick one of the sheets in the workbook",
			Code:    "SHEET001",
		},
	},
	{
		pattern: "no header row",
		msg: UserMessage{
			Message: "The sheet has no header row",
			Action:  "Add the template column headers to the first row",
			Code:    "SHEET002",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "No data rows follow the header",
			Action:  "Fill in at least one record below the header",
			Code:    "SHEET003",
		},
	},

	// =========================================================================
	// Task Errors (TASK001-TASK002)
	// =========================================================================
	{
		pattern: "unknown task",
		msg: UserMessage{
			Message: "Unknown task type",
			Action:  "Choose one of the configured task types",
			Code:    "TASK001",
		},
	},
	{
		pattern: "compile task",
		msg: UserMessage{
			Message: "The task template is invalid",
			Action:  "Contact an administrator to fix the template",
			Code:    "TASK002",
		},
	},
	{
		pattern: "invalid template",
		msg: UserMessage{
			Message: "The task template is invalid",
			Action:  "Contact an administrator to fix the template",
			Code:    "TASK002",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001)
	// =========================================================================
	{
		pattern: "validation failed",
		msg: UserMessage{
			Message: "A check could not be evaluated for a cell",
			Action:  "Review the value in the reported cell",
			Code:    "VAL001",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN004)
	// =========================================================================
	{
		pattern: "too many concurrent",
		msg: UserMessage{
			Message: "System is busy processing other validations",
			Action:  "Please wait a moment and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Validation run not found",
			Action:  "The run may have expired. Please validate the file again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "RUN004",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error matches a known pattern rather
// than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
