package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"

	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
)

/*
	A mutex per key, created on demand and dropped when nobody holds or
	waits on it.  Waiting can be abandoned by cancelling the context.
*/
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: make(map[string]*keyLock)}
}

func (l *keyedLocks) acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	kl, ok := l.m[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.m[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return func() {
			<-kl.sem
			l.drop(key, kl)
		}, nil
	case <-ctx.Done():
		l.drop(key, kl)
		return nil, Errorf(lspws.ErrCancelled, "cancelled while waiting for workspace %s", key)
	}
}

func (l *keyedLocks) drop(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.m, key)
	}
	l.mu.Unlock()
}

// How often to retry a lock file held by another process.
const lockFilePoll = 50 * time.Millisecond

/*
	Take an exclusive flock on dir/name, creating both as needed.
	Polls until the lock is ours or the context is done.
*/
func lockFile(ctx context.Context, dir fs.AbsolutePath, name string) (unlock func(), err error) {
	if err := os.MkdirAll(dir.String(), 0755); err != nil {
		return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot create workspace dir %s: %s", dir, err)
	}
	pth := filepath.Join(dir.String(), name)
	f, err := os.OpenFile(pth, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot open lock file %s: %s", pth, err)
	}
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			f.Close()
			return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot lock %s: %s", pth, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, Errorf(lspws.ErrCancelled, "cancelled while waiting for lock %s", pth)
		case <-time.After(lockFilePoll):
		}
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
