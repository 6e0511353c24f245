// Package schemas embeds the JSON Schemas of the documents the service
// accepts and produces.
package schemas

import "embed"

// Files holds every *.schema.json in this directory
//
//go:embed *.schema.json
var Files embed.FS
