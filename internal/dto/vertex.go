package dto

// VertexGenerateRequest is the adapter-level request for one generation.
type VertexGenerateRequest struct {
	Model           string
	System          string
	UserMessage     string
	Temperature     *float32
	MaxOutputTokens *int32
}

type VertexGenerateResponse struct {
	Text string
	Raw  any
}
