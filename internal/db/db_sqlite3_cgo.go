//go:build cgo && sqlite3_cgo

package db

// Built with -tags sqlite3_cgo when cgo is available.

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverID = "mattn/go-sqlite3"
const driverName = "sqlite3"
