//go:build dragonfly || ios || freebsd || darwin || (linux && ppc64) || (linux && ppc64le) || (linux && s390x) || (linux && amd64) || (linux && mips64) || (linux && mips64le) || (linux && arm64) || android || (windows && amd64) || (windows && arm64)

package drivers

import (
	// The stdlib adapter registers pgx under the "pgx" driver name, so
	// -db-type=pgx resolves without any engine-specific code elsewhere.
	_ "github.com/jackc/pgx/v5/stdlib"
)
