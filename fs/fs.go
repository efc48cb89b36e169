// Package appfs bundles the files the binaries need at runtime: SQL migrations, email and page
// templates, and the common-passwords list used by the password policy.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS
