package backend

// GeminiRequest represents the request body for the Gemini
// streamGenerateContent API
type GeminiRequest struct {
	SystemInstruction *GeminiContent  `json:"system_instruction,omitempty"`
	Contents          []GeminiContent `json:"contents"`
}

// GeminiContent represents one content entry (a turn, or the system
// instruction) in a Gemini request or response
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents one part of a content entry
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiStreamResponse represents a single streamed response event from the
// Gemini API (one SSE data payload)
type GeminiStreamResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata map[string]interface{} `json:"usageMetadata"`
}

// GeminiErrorResponse represents an error body from the Gemini API
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
