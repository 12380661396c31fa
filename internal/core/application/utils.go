package application

import (
	"context"
	"sync"
)

type walletLock struct {
	ch   chan struct{}
	refs int
}

// walletLocksMap serializes the mutations of a wallet, different wallets
// never block each other
type walletLocksMap struct {
	lock  *sync.Mutex
	locks map[string]*walletLock
}

func newWalletLocksMap() *walletLocksMap {
	return &walletLocksMap{&sync.Mutex{}, make(map[string]*walletLock)}
}

// acquire blocks until the lock of walletID is held or ctx is done. The
// returned func releases it.
func (m *walletLocksMap) acquire(ctx context.Context, walletID string) (func(), error) {
	m.lock.Lock()
	l, ok := m.locks[walletID]
	if !ok {
		l = &walletLock{ch: make(chan struct{}, 1)}
		m.locks[walletID] = l
	}
	l.refs++
	m.lock.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(walletID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.unref(walletID, l)
		})
	}, nil
}

func (m *walletLocksMap) unref(walletID string, l *walletLock) {
	m.lock.Lock()
	defer m.lock.Unlock()

	l.refs--
	if l.refs <= 0 {
		delete(m.locks, walletID)
	}
}

func (m *walletLocksMap) len() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.locks)
}
