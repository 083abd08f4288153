package hci

import "context"

// Driver is an optional per-controller plug-in invoked during power-on,
// before the standard reset+capability-discovery sequence is considered
// complete (§6 "Driver hook"). The core passes itself so the driver can
// issue vendor commands through the same pipeline, then proceeds only
// after InitController returns.
type Driver interface {
	InitController(ctx context.Context, h *Host) error
}
