//go:build !linux

package capture

import (
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
)

// OpenLive needs AF_PACKET, which only exists on Linux.
func OpenLive(opts LiveOptions) (Source, error) {
	return nil, fmt.Errorf("%w: device %s", core.ErrLiveUnsupported, opts.Device)
}
