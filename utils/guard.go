package utils

// Guard runs cleanup for a partially built resource when the function building it fails.
//
//	guard := NewGuard(func() { listener.Close() })
//	defer guard.OnFail()
//	if err != nil { return err }
//	guard.Success()
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard that runs onFailCleanup from OnFail unless Success was called.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success declares the function succeeded; OnFail does nothing afterwards.
func (guard *Guard) Success() {
	guard.success = true
}
