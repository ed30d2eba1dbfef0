//go:build !windows

package hotkeys

// PlatformTarget builds the registration target for this platform.
var PlatformTarget TargetFactory = NewNoopTarget
