// Package migrations embeds the credential schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
