//go:build dragonfly || ios || freebsd || darwin || (linux && ppc64) || (linux && ppc64le) || (linux && s390x) || (linux && amd64) || (linux && mips64) || (linux && mips64le) || (linux && arm64) || android || (windows && amd64) || (windows && arm64)

package drivers

import (
	"database/sql"
	"database/sql/driver"

	sqlite "modernc.org/sqlite"
)

// init wires up the "chai" driver name so callers can request it via
// database/sql. It reuses the modernc SQLite backend, which keeps the
// build CGO-free while giving the -db-type=chai flag a real engine.
func init() {
	sql.Register("chai", newChaiDriver())
}

// newChaiDriver returns a driver.Driver backed by modernc SQLite. The
// helper keeps the registration explicit and testable in isolation.
func newChaiDriver() driver.Driver {
	return &sqlite.Driver{}
}
