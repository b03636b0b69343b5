//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the sqlite driver.
	// vec.Auto() registers it as an auto-loadable extension; the probe in
	// detectVecExtension then finds vec0 available.
	vec.Auto()
}
