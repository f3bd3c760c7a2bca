// Package migrations embeds the persistent tier schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
