//go:build !windows
// +build !windows

package procgroup

import (
	"github.com/core-tools/hsu-procgroup/pkg/errors"
)

// Process groups are backed by a kernel object that only Windows provides.
// On other platforms group creation fails up front; the block modeling and
// the façade logic stay testable everywhere through the in-package fake.
func newPlatformGroupAPI() (nativeGroupAPI, error) {
	return nil, errors.NewInternalError("process groups are not supported on this platform", nil)
}
