// Package dispatch turns a prompt for a named model into a provider call.
//
// The Dispatcher checks the request against the model's capability
// descriptor (files, reasoning effort, context size), resolves or creates the
// conversation, records the user turn, calls the provider client bound to the
// model with no store lock held, and records the answer. Failures are
// classified with Kind so the route layer can map them to status codes.
package dispatch
