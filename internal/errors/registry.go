package errors

// ErrorTemplate defines a registered error code.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Session errors (E100-E199)

	"E101": {
		Category:   CategorySession,
		Message:    "Room resolution failed",
		Detail:     "The live API did not return the room's canonical id or connection details.",
		Suggestion: "Check the room id. Rooms that require login need a SESSDATA cookie (BLIVEDM_SESSDATA).",
	},
	"E102": {
		Category:   CategorySession,
		Message:    "Could not connect to the chat server",
		Detail:     "The websocket handshake with the chat server failed.",
		Suggestion: "Check network access to *.chat.bilibili.com, or set a proxy with HTTPS_PROXY.",
	},
	"E103": {
		Category:   CategorySession,
		Message:    "Auth rejected by the chat server",
		Detail:     "The server answered the auth packet with a non-zero code. Retrying with the same credentials will not help.",
		Suggestion: "Refresh the SESSDATA cookie, or for open platform apps check the access key and identity code.",
	},

	// Configuration errors (E200-E299)

	"E201": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Detail:     "blivedm.json or a BLIVEDM_* environment variable holds a value that cannot be used.",
		Suggestion: "Run with --log-level=debug to see where each setting came from.",
	},

	// Archive errors (E300-E399)

	"E301": {
		Category:   CategoryArchive,
		Message:    "Archive failure",
		Detail:     "Events could not be written to the configured archive.",
		Suggestion: "Check that the SQLite path is writable or that the S3 bucket and credentials are valid.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
