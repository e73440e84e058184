package gemini

// Wire types for the generateContent REST endpoint. The request carries prior
// turns in full because the API is stateless; images travel as inline base64.

// Content is one turn in the contents array
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single content part: text or inline image data
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a base64-encoded binary payload embedded in the JSON body
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig selects the response modalities
type GenerationConfig struct {
	ResponseModalities []string `json:"response_modalities,omitempty"`
}

// generateRequest is the full request body
type generateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"`
}

// generateResponse is the subset of the response body we consume
type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Result is a parsed model reply. Text concatenates text parts in response
// order; Image is the first inline image payload, decoded.
type Result struct {
	Image []byte
	Text  string
}

// TextPart builds a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline PNG image part from raw bytes
func ImagePart(data []byte) Part {
	return Part{InlineData: &InlineData{MimeType: "image/png", Data: encodeBase64(data)}}
}
