//go:build !robotgo && !windows && !(darwin && cgo)

package input

func platformPointer() (Pointer, error) { return nil, ErrUnsupported }
