// Package capability holds the static table of routable models.
//
// Each Descriptor says whether a model accepts file attachments, how large a
// context it takes, and what reasoning control it offers. Bind pairs every
// descriptor with its provider client once at startup, so request handling
// never dispatches on model-name strings.
package capability
