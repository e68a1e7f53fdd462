// Package template implements the minimal placeholder grammar used to render
// notification content from a data payload:
//
//	{{name}}                  substitutes data["name"], empty when missing
//	{{#if name}}...{{/if}}    renders the block when data["name"] is truthy
//
// Blocks nest. Rendering is a pure function and never fails: malformed markup
// is emitted verbatim and missing keys render as empty strings, so a bad
// template can degrade the message text but can never fail a delivery.
//
// The grammar is deliberately tiny and interpreted in one pass; notification
// bodies do not need loops, partials or escaping, and pulling in a general
// templating engine would be overkill for two constructs.
package template
