//go:build !sqlite3_cgo

package db

// Pure Go driver, used unless built with -tags sqlite3_cgo.

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverID = "ncruces/go-sqlite3"
const driverName = "sqlite3"
