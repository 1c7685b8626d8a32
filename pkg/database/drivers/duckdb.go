//go:build cgo && duckdb && linux && (amd64 || arm64)

// DuckDB stays behind a build tag so default builds remain CGO-free
// and cross compilation stays predictable. Binaries that want the
// engine opt in explicitly:
//
//	CGO_ENABLED=1 GOOS=linux GOARCH=amd64 go build -tags duckdb
//	CGO_ENABLED=1 GOOS=linux GOARCH=arm64 go build -tags duckdb
package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)
