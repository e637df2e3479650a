package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderAuthorization = "Authorization"
	AuthSchemeBearer    = "Bearer"
	ContentTypeJSON     = "application/json"
)

// Environment variables
const (
	EnvAPIToken       = "API_TOKEN" // #nosec G101 - variable name, not a credential
	EnvTesseractCmd   = "TESSERACT_CMD"
	EnvConfigPath     = "SAGEXTRACT_CONFIG"
	DefaultEnvFile    = ".env"
	DefaultConfigFile = "config.yaml"
)

// Remote analyzer defaults
const (
	DefaultEndpoint = "https://api.sage.cudasvc.com/openai/chat/completions"
	DefaultModel    = "gpt-4o-mini"
	DefaultPrompt   = "Please extract all visible text in this image and return it as a list of objects " +
		"with this format: {text: '...', bounding_box: [x1, y1, x2, y2]}, where coordinates are in image pixel space."
)

// Run modes
const (
	ModeVision = "vision"
	ModeOCR    = "ocr"
)

// MIME types
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
)

// Output file names
const (
	DefaultOutputDir    = "output"
	DefaultResultFile   = "result.json"
	DefaultCombinedFile = "combined_results.json"
	ItemFilePattern     = "result_page%d_img%d.json"
)

// Exit codes
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)
