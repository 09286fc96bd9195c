// Package langchain serves Anthropic and Gemini models through
// github.com/tmc/langchaingo.
package langchain
