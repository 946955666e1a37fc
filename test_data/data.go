package testdata

import "embed"

// FS holds the sample documents under the "xml" directory.
//
//go:embed xml
var FS embed.FS
