//go:build !unix

package daemon

type fileLock struct{}

// acquireLock is a no-op where flock is unavailable.
func acquireLock(string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) release() error {
	return nil
}
