package errors

import (
	"maps"
	"slices"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (E100-E199)
	"E100": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Create readyroom.json or run without --config to use the defaults",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Configuration file is not valid JSON",
		Suggestion: "Check readyroom.json for trailing commas and unquoted keys",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Invalid duration",
		Suggestion: `Durations use Go syntax, e.g. "100ms", "2s"`,
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Configuration file could not be written",
	},

	// Transport (E200-E299)
	"E200": {
		Category:   CategoryTransport,
		Message:    "Listener could not be started",
		Suggestion: "Check that the address is free and that you may bind to it",
	},
	"E201": {
		Category: CategoryTransport,
		Message:  "Server stopped unexpectedly",
	},

	// CLI (E300-E399)
	"E300": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
	"E301": {
		Category:   CategoryCLI,
		Message:    "Could not reach the server",
		Suggestion: "Start it with 'readyroom serve' or pass --addr",
	},
	"E302": {
		Category: CategoryCLI,
		Message:  "Server closed the session",
	},
	"E303": {
		Category: CategoryCLI,
		Message:  "Unexpected message from server",
	},

	// Archive (E400-E499)
	"E400": {
		Category:   CategoryArchive,
		Message:    "Archive is enabled without a bucket",
		Suggestion: `Set "archive.bucket" or disable the archive`,
	},
	"E401": {
		Category: CategoryArchive,
		Message:  "Transcript upload failed",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in ascending order.
func Codes() []string {
	return slices.Sorted(maps.Keys(registry))
}
