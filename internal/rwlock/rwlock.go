// Package rwlock implements a writer-priority multiple-reader/single-writer
// lock that works across processes.
//
// The lock is built from two binary semaphores and two words of shared state:
//
//   - the counter-mutex serializes updates to the reader count;
//   - the writer-exclusion semaphore is held by one writer, or by the group of
//     active readers as a whole (the first reader in takes it, the last one
//     out gives it back);
//   - the reader count and the waiting-writer count live in memory every
//     participant maps, normally the lock-state section of a segment.
//
// Once a writer announces itself by bumping the waiting-writer count, new
// readers back off until the count drops to zero, so a stream of readers
// cannot starve writers.
//
// Semaphores are always taken in the order counter-mutex, then
// writer-exclusion. The writer path never touches the counter-mutex, so no
// participant can hold writer-exclusion while waiting for the counter-mutex.
package rwlock

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/specialistvlad/shmdag/internal/semaphore"
)

var (
	// ErrSemaphoreUnavailable wraps a failure to wait on or post a semaphore.
	ErrSemaphoreUnavailable = errors.New("semaphore unavailable")
	// ErrProtocolViolation is returned when the shared state shows the
	// protocol was broken, e.g. a release without a matching acquire.
	ErrProtocolViolation = errors.New("lock protocol violation")
)

// StateSize is the number of bytes of shared state the lock needs.
const StateSize = 8

const defaultSpin = 64

// Mode names used when reporting wait durations.
const (
	ModeRead  = "read"
	ModeWrite = "write"
)

// Observer receives the time spent waiting for the lock.
type Observer interface {
	ObserveLockWait(mode string, d time.Duration)
}

// Option configures a Lock.
type Option func(*Lock)

// WithObserver reports wait durations to o.
func WithObserver(o Observer) Option {
	return func(l *Lock) { l.observer = o }
}

// WithSpin sets how many times a reader yields before blocking while a
// writer is waiting.
func WithSpin(n int) Option {
	return func(l *Lock) {
		if n >= 0 {
			l.spin = n
		}
	}
}

// Lock is a writer-priority MRSW lock. A Lock value is local to a process;
// every process builds its own over the same shared state and semaphores.
type Lock struct {
	mutex    *semaphore.Semaphore
	writer   *semaphore.Semaphore
	readers  *int32
	waiting  *uint32
	spin     int
	observer Observer
}

// New builds a lock over state, which must be at least StateSize bytes,
// 4-byte aligned, and shared by every participant. Both semaphores must be
// binary semaphores initialised to 1.
func New(state []byte, mutex, writer *semaphore.Semaphore, opts ...Option) (*Lock, error) {
	if len(state) < StateSize {
		return nil, fmt.Errorf("%w: lock state is %d bytes, need %d", ErrProtocolViolation, len(state), StateSize)
	}
	l := &Lock{
		mutex:   mutex,
		writer:  writer,
		readers: (*int32)(unsafe.Pointer(&state[0])),
		waiting: (*uint32)(unsafe.Pointer(&state[4])),
		spin:    defaultSpin,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Reset zeroes the shared state. Only the creator calls it, before anyone
// else can see the state.
func Reset(state []byte) {
	for i := 0; i < StateSize && i < len(state); i++ {
		state[i] = 0
	}
}

// Readers returns the number of active readers.
func (l *Lock) Readers() int {
	return int(atomic.LoadInt32(l.readers))
}

// WaitingWriters returns the number of writers waiting for the lock.
func (l *Lock) WaitingWriters() int {
	return int(atomic.LoadUint32(l.waiting))
}

// AcquireRead takes the lock in shared mode.
func (l *Lock) AcquireRead() error {
	start := time.Now()
	for {
		if err := l.mutex.Wait(); err != nil {
			return unavailable(err)
		}

		if w := atomic.LoadUint32(l.waiting); w != 0 {
			if err := l.mutex.Post(); err != nil {
				return violation(err)
			}
			l.backoff(w)
			continue
		}

		if atomic.AddInt32(l.readers, 1) == 1 {
			if err := l.writer.Wait(); err != nil {
				atomic.AddInt32(l.readers, -1)
				l.mutex.Post()
				return unavailable(err)
			}
		}
		if err := l.mutex.Post(); err != nil {
			return violation(err)
		}
		l.observe(ModeRead, start)
		return nil
	}
}

// ReleaseRead releases a shared hold.
func (l *Lock) ReleaseRead() error {
	if err := l.mutex.Wait(); err != nil {
		return unavailable(err)
	}

	n := atomic.AddInt32(l.readers, -1)
	var err error
	switch {
	case n < 0:
		atomic.StoreInt32(l.readers, 0)
		err = fmt.Errorf("%w: reader count went negative", ErrProtocolViolation)
	case n == 0:
		if perr := l.writer.Post(); perr != nil {
			err = violation(perr)
		}
	}

	if perr := l.mutex.Post(); perr != nil && err == nil {
		err = violation(perr)
	}
	return err
}

// AcquireWrite takes the lock in exclusive mode.
func (l *Lock) AcquireWrite() error {
	start := time.Now()
	atomic.AddUint32(l.waiting, 1)
	werr := l.writer.Wait()
	if atomic.AddUint32(l.waiting, math.MaxUint32) == 0 {
		semaphore.Wake(l.waiting, math.MaxInt32)
	}
	if werr != nil {
		return unavailable(werr)
	}
	l.observe(ModeWrite, start)
	return nil
}

// ReleaseWrite releases an exclusive hold.
func (l *Lock) ReleaseWrite() error {
	if err := l.writer.Post(); err != nil {
		return violation(err)
	}
	return nil
}

// WithRead runs fn while holding the lock in shared mode.
func (l *Lock) WithRead(fn func() error) error {
	if err := l.AcquireRead(); err != nil {
		return err
	}
	ferr := fn()
	if err := l.ReleaseRead(); err != nil {
		return errors.Join(ferr, err)
	}
	return ferr
}

// WithWrite runs fn while holding the lock in exclusive mode.
func (l *Lock) WithWrite(fn func() error) error {
	if err := l.AcquireWrite(); err != nil {
		return err
	}
	ferr := fn()
	if err := l.ReleaseWrite(); err != nil {
		return errors.Join(ferr, err)
	}
	return ferr
}

// backoff lets a waiting writer through: a short spin for writers that are
// about to finish, then a futex wait until the waiting count changes.
func (l *Lock) backoff(seen uint32) {
	for i := 0; i < l.spin; i++ {
		if atomic.LoadUint32(l.waiting) == 0 {
			return
		}
		runtime.Gosched()
	}
	semaphore.WaitChange(l.waiting, seen)
}

func (l *Lock) observe(mode string, start time.Time) {
	if l.observer != nil {
		l.observer.ObserveLockWait(mode, time.Since(start))
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrSemaphoreUnavailable, err)
}

func violation(err error) error {
	return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
}
