// Package provider defines the Client contract the dispatcher uses to reach
// upstream language models, plus attachment loading shared by the vendor
// implementations in provider/openai and provider/langchain.
package provider
