package llm

// ResponseFormat selects the output shape the model is asked to produce.
type ResponseFormat string

const (
	// FormatText requests free-form text output. This is the default.
	FormatText ResponseFormat = "text"

	// FormatJSON requests a single well-formed JSON object. Providers that
	// support a native JSON mode should enable it; others should fall back to
	// prompt-level instruction.
	FormatJSON ResponseFormat = "json_object"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some providers return it directly rather than computing it
	// from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history. If the provider does not natively support a
	// dedicated system prompt, implementors should prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs. A value of 0.0 requests the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// Format selects the response shape. The zero value is FormatText.
	Format ResponseFormat
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}
