// Package openai implements provider.Client over plain HTTP for the OpenAI
// Responses API and for OpenAI-compatible chat completions endpoints such as
// xAI's.
package openai
