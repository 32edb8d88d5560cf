package core

// error_messages.go maps pipeline errors to user notices.
//
// # Notice Codes Reference
//
// Codes are grouped by error kind so support staff can tell at a glance which
// pipeline stage failed.
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - No file selected
//	         Patterns: "no file"
//	VAL002 - No log type selected
//	         Patterns: "no log type selected", "unknown log type"
//	VAL003 - Upload in progress
//	         Patterns: "busy"
//	VAL004 - Nothing to confirm
//	         Patterns: "not awaiting confirmation"
//	VAL005 - Upload session not found
//	         Patterns: "session not found"
//	VAL000 - Any other validation error
//
// # File (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Patterns: "file too large"
//	FILE002 - No header row
//	          Patterns: "no header"
//	FILE003 - Not a readable spreadsheet
//	          Patterns: "spreadsheet"
//	FILE000 - Any other decode error
//
// # Payload (PAY001-PAY099)
//
//	PAY001 - Payload too large
//	         Patterns: "payload too large"
//	PAY000 - Any other payload error
//
// # Submission (SUB001-SUB099)
//
//	SUB001 - Analysis timed out
//	         Patterns: "deadline exceeded", "timeout"
//	SUB002 - Analysis service unreachable
//	         Patterns: "connection refused", "no such host"
//	SUB003 - Malformed analysis response
//	         Patterns: "response"
//	SUB000 - Any other submission error
//
// # Render (RND001-RND099)
//
//	RND001 - Result has no metrics
//	         Patterns: "metrics are missing"
//	RND000 - Any other render error
//
// # Other
//
//	UPL001 - Too many uploads in progress
//	         Patterns: "too many uploads"
//	RATE001 - Too many requests
//	         Patterns: "rate limit"
//	ERR000 - Unexpected error
//
// Patterns are matched case-insensitively with strings.Contains against the
// full error chain, within the error's kind. The first match wins.

import (
	"fmt"
	"strings"
)

// Notice is what a user sees when something goes wrong: a short title, a
// sentence of guidance and a code for support.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type noticePattern struct {
	pattern string
	notice  Notice
}

// kindPatterns holds the specific notices per kind, most specific first.
var kindPatterns = map[Kind][]noticePattern{
	KindValidation: {
		{"no file", Notice{"No file selected.", "Please upload an Excel or CSV file to continue.", "VAL001"}},
		{"no log type selected", Notice{"No log type selected.", "Please select a log type.", "VAL002"}},
		{"unknown log type", Notice{"No log type selected.", "Choose firewall, system, cloud or auto-detect.", "VAL002"}},
		{"busy", Notice{"Upload in progress.", "Wait for the current upload to finish before starting another.", "VAL003"}},
		{"not awaiting confirmation", Notice{"Nothing to confirm.", "Upload a file before confirming its log type.", "VAL004"}},
		{"session not found", Notice{"Upload session not found.", "The upload may have expired. Please start a new upload.", "VAL005"}},
	},
	KindDecode: {
		{"file too large", Notice{"File too large.", "Split the export into smaller files.", "FILE001"}},
		{"no header", Notice{"File upload failed.", "The file has no header row.", "FILE002"}},
		{"spreadsheet", Notice{"File upload failed.", "The spreadsheet could not be read. Save it as .xlsx or .csv and try again.", "FILE003"}},
	},
	KindPayload: {
		{"payload too large", Notice{"File upload failed.", "The file is too large to send for analysis.", "PAY001"}},
	},
	KindSubmission: {
		{"deadline exceeded", Notice{"File upload failed.", "The analysis service did not answer in time. Please try again later.", "SUB001"}},
		{"timeout", Notice{"File upload failed.", "The analysis service did not answer in time. Please try again later.", "SUB001"}},
		{"connection refused", Notice{"File upload failed.", "The analysis service is unreachable. Please try again later.", "SUB002"}},
		{"no such host", Notice{"File upload failed.", "The analysis service is unreachable. Please try again later.", "SUB002"}},
		{"response", Notice{"File upload failed.", "The analysis service returned an unexpected answer.", "SUB003"}},
	},
	KindRender: {
		{"metrics are missing", Notice{"Export failed.", "This result has no metrics to export.", "RND001"}},
	},
}

// kindDefaults is used when no pattern of the kind matches.
var kindDefaults = map[Kind]Notice{
	KindValidation: {"Check your input.", "The request is missing required information.", "VAL000"},
	KindDecode:     {"File upload failed.", "The file could not be read as a spreadsheet or delimited text.", "FILE000"},
	KindPayload:    {"File upload failed.", "The file could not be prepared for analysis.", "PAY000"},
	KindSubmission: {"File upload failed.", "Please try again later.", "SUB000"},
	KindRender:     {"Export failed.", "The result could not be rendered.", "RND000"},
}

// untypedPatterns apply to errors without a kind.
var untypedPatterns = []noticePattern{
	{"too many uploads", Notice{"System busy.", "Please wait a moment and try again.", "UPL001"}},
	{"rate limit", Notice{"Too many requests.", "Please wait a moment before trying again.", "RATE001"}},
}

var defaultNotice = Notice{
	Title:       "Something went wrong.",
	Description: "Please try again or contact support.",
	Code:        "ERR000",
}

// SuccessNotice is shown after a result has been stored.
var SuccessNotice = Notice{
	Title:       "File uploaded successfully!",
	Description: "Your file has been uploaded and processed.",
}

// MapError converts an error into the notice shown to the user.
func MapError(err error) Notice {
	if err == nil {
		return Notice{}
	}

	msg := strings.ToLower(err.Error())
	kind := KindOf(err)

	patterns := untypedPatterns
	if kind != "" {
		patterns = kindPatterns[kind]
	}
	for _, p := range patterns {
		if strings.Contains(msg, p.pattern) {
			return p.notice
		}
	}

	if n, ok := kindDefaults[kind]; ok {
		return n
	}
	return defaultNotice
}

// FormatNotice renders a notice as a single line: "Title Description (Code: XXX)".
func FormatNotice(err error) string {
	n := MapError(err)
	if n.Title == "" {
		return ""
	}
	return fmt.Sprintf("%s %s (Code: %s)", n.Title, n.Description, n.Code)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultNotice.Code
}
