//go:build !linux

package semaphore

// WaitChange is unavailable without futex(2).
func WaitChange(addr *uint32, old uint32) error {
	return ErrUnsupported
}

// Wake is unavailable without futex(2).
func Wake(addr *uint32, n int) error {
	return ErrUnsupported
}
