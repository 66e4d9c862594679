// Package config provides configuration primitives for the maestro engine:
// a type-safe accessor over the loosely-typed property bags carried by graph
// nodes, and file-based settings for the CLI and embedding applications.
package config
