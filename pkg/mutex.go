package pkg

import "sync"

// HasLocker is implemented by types that guard their state with one
// RWMutex. LockWrap and RLockWrap scope the critical section to a closure
// so unlocks cannot be forgotten on early returns.
type HasLocker interface{ GetLocker() *sync.RWMutex }

func LockWrap(i HasLocker, f func()) {
	i.GetLocker().Lock()
	defer i.GetLocker().Unlock()
	f()
}

func RLockWrap(i HasLocker, f func()) {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	f()
}
