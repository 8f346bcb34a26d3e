//go:build !sqlite_vec || !cgo

package store

import "fmt"

// NewVecIndex is unavailable without the sqlite_vec build tag and cgo.
func NewVecIndex(path string, dims int) (VectorIndex, error) {
	return nil, fmt.Errorf("sqlite-vec index requires building with -tags sqlite_vec and CGO_ENABLED=1")
}
