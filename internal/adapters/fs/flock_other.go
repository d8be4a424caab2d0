//go:build !unix

package fs

import "os"

// lockFile is a no-op where flock is unavailable; the in-process mutex still
// serializes access.
func lockFile(*os.File) (func(), error) {
	return func() {}, nil
}
