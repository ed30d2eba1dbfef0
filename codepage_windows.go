//go:build windows

package main

import "golang.org/x/sys/windows"

const codePageUTF8 = 65001

var (
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetConsoleOutputCP = kernel32.NewProc("SetConsoleOutputCP")
	procSetConsoleCP       = kernel32.NewProc("SetConsoleCP")
)

// setConsoleUTF8 switches the attached console to UTF-8 so target names
// and paths print correctly. Failures leave the code page unchanged.
func setConsoleUTF8() {
	procSetConsoleOutputCP.Call(codePageUTF8)
	procSetConsoleCP.Call(codePageUTF8)
}
