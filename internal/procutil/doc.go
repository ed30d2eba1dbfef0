// Package procutil configures child processes started by the controller:
// HideWindow keeps the suspend tool from flashing a console window, Detach
// keeps launched targets out of the controller's console signal group.
package procutil
