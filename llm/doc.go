// Package llm abstracts the chat-completion backend used by agent nodes.
// The default client speaks the OpenAI API; tests use the in-package mock.
package llm
