// Package appfs embeds runtime assets: database migrations and email
// templates.
package appfs

import "embed"

// The base layout is named explicitly: directory patterns skip files
// whose names start with "_".
//
//go:embed migrations assets assets/templates/email/_base.txt
var FS embed.FS
