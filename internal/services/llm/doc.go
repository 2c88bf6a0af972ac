// Package llm wraps the OpenRouter chat completion API with JSON-only
// requests, bounded retries honoring Retry-After, optional request rate
// limiting, and token usage accounting. DecodeLLMJSON tolerates the common
// formatting quirks models wrap payloads in, such as code fences and
// surrounding prose.
package llm
