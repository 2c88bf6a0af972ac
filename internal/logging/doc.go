// Package logging configures slog for podsnip with two handler flavors: a
// human-oriented console handler that prefixes messages with their component
// and renders attrs as key=value pairs, and a JSON handler for ingestion by
// log collectors. It also defines the canonical field names and helpers for
// pulling request-scoped identifiers out of a context.
package logging
