package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Codes used by the tickwire command and its configuration loader.
const (
	CodeConfigSyntax       = "T101"
	CodeConfigRead         = "T102"
	CodeInvalidTickRate    = "T103"
	CodeInvalidTransport   = "T104"
	CodeInvalidAddr        = "T105"
	CodeInvalidWindow      = "T106"
	CodeInvalidPingEvery   = "T107"
	CodeInvalidLogLevel    = "T108"
	CodeInvalidTimeout     = "T109"
	CodeConfigNotFound     = "T110"
	CodeBindFailed         = "T201"
	CodeConnectFailed      = "T202"
	CodeConnectionLost     = "T203"
	CodeMetricsServer      = "T204"
	CodeInvalidFrame       = "T205"
	CodeReportUpload       = "T206"
	CodeInvalidBench       = "T301"
	CodeInvalidErrorFormat = "T302"
)

var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (T101-T199)
	// ============================================

	"T101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration syntax",
		Detail:   "tickwire.json could not be parsed as JSON.",
	},
	"T102": {
		Category: CategoryConfig,
		Message:  "Configuration file unreadable",
		Detail:   "The configuration file exists but could not be read.",
	},
	"T103": {
		Category:   CategoryConfig,
		Message:    "Invalid tick rate",
		Detail:     "The tick rate must be between 1 and 255 ticks per second.",
		Suggestion: "Use 30 unless the application needs a faster loop.",
	},
	"T104": {
		Category:   CategoryConfig,
		Message:    "Unknown transport",
		Detail:     "The transport must be one of tcp or ws.",
		Suggestion: `Set "transport": "tcp".`,
	},
	"T105": {
		Category:   CategoryConfig,
		Message:    "Invalid address",
		Detail:     "Addresses take the form host:port.",
		Suggestion: `Use "127.0.0.1:7564" or ":7564".`,
	},
	"T106": {
		Category: CategoryConfig,
		Message:  "Invalid clock window",
		Detail:   "The moving average window must hold at least one sample.",
	},
	"T107": {
		Category: CategoryConfig,
		Message:  "Invalid ping interval",
		Detail:   "pingEvery is measured in ticks and must be positive.",
	},
	"T108": {
		Category:   CategoryConfig,
		Message:    "Invalid log level",
		Detail:     "The log level must be one of debug, info, warn or error.",
		Suggestion: "Pass --log-level=debug to see every connection event.",
	},
	"T109": {
		Category: CategoryConfig,
		Message:  "Invalid connect timeout",
		Detail:   "The connect timeout must be a positive duration such as \"2s\".",
	},
	"T110": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "The file passed with --config does not exist.",
	},

	// ============================================
	// Transport Errors (T201-T299)
	// ============================================

	"T201": {
		Category:   CategoryTransport,
		Message:    "Failed to bind server",
		Detail:     "The server could not listen on the configured address.",
		Suggestion: "Check that no other process is using the port.",
	},
	"T202": {
		Category:   CategoryTransport,
		Message:    "Failed to connect",
		Detail:     "The client could not reach the server.",
		Suggestion: "Make sure tickwire serve is running with the same transport.",
	},
	"T203": {
		Category: CategoryTransport,
		Message:  "Connection lost",
		Detail:   "The peer closed the connection or it was reset.",
	},
	"T204": {
		Category: CategoryTransport,
		Message:  "Metrics server failed",
		Detail:   "The HTTP server exposing /metrics stopped unexpectedly.",
	},
	"T205": {
		Category: CategoryProtocol,
		Message:  "Invalid frame",
		Detail:   "A message could not be encoded or decoded.",
	},
	"T206": {
		Category:   CategoryTransport,
		Message:    "Failed to publish report",
		Suggestion: "Check AWS_REGION and the AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY pair, or write the report to a local path",
	},

	// ============================================
	// CLI Errors (T301-T399)
	// ============================================

	"T301": {
		Category:   CategoryCLI,
		Message:    "Invalid benchmark option",
		Suggestion: "Profiles are fast, standard and stress. Client and tick counts must be positive.",
	},

	"T302": {
		Category:   CategoryCLI,
		Message:    "Unknown error format",
		Suggestion: "Use --error-format pretty, compact or json.",
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

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
