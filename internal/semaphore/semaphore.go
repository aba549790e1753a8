// Package semaphore implements process-shared counting semaphores on top of a
// 32-bit word in shared memory and the futex(2) system call, which is also
// how the C library implements sem_t. No cgo is involved.
//
// A named semaphore lives in its own small shared-memory object, so any
// process that knows the name can open it. An unnamed semaphore wraps a word
// the caller already has mapped.
//
// Wait never sleeps on a timer: a waiter that finds the count at zero blocks
// in the kernel until Post changes the word.
package semaphore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/specialistvlad/shmdag/internal/shm"
)

var (
	// ErrUnsupported is returned on platforms without futex(2).
	ErrUnsupported = errors.New("process-shared semaphores are not supported on this platform")
	// ErrOverflow is returned by Post when the count is already at its maximum.
	ErrOverflow = errors.New("semaphore count at maximum")
	// ErrCorrupt is returned by Open when the object is not a semaphore.
	ErrCorrupt = errors.New("not a semaphore object")
)

const (
	objectSize = 64
	magic      = 0x314d4553 // "SEM1"

	offValue = 0
	offMax   = 4
	offMagic = 8
)

// Semaphore is a counting semaphore shared between processes.
type Semaphore struct {
	name string
	word *uint32
	max  uint32
	obj  *shm.Object
}

// Create creates a named semaphore with the given initial and maximum count.
// Use max 1 for a binary semaphore.
func Create(dir, name string, initial, max uint32) (*Semaphore, error) {
	if max == 0 || initial > max {
		return nil, fmt.Errorf("semaphore %s: invalid counts initial=%d max=%d", name, initial, max)
	}
	obj, err := shm.Create(dir, name, objectSize)
	if err != nil {
		return nil, err
	}
	b := obj.Bytes()
	binary.LittleEndian.PutUint32(b[offMax:], max)
	binary.LittleEndian.PutUint32(b[offMagic:], magic)

	s := &Semaphore{name: name, word: wordAt(b, offValue), max: max, obj: obj}
	atomic.StoreUint32(s.word, initial)
	return s, nil
}

// Open opens an existing named semaphore.
func Open(dir, name string) (*Semaphore, error) {
	obj, err := shm.Open(dir, name)
	if err != nil {
		return nil, err
	}
	b := obj.Bytes()
	if len(b) < objectSize || binary.LittleEndian.Uint32(b[offMagic:]) != magic {
		obj.Close()
		return nil, fmt.Errorf("semaphore %s: %w", name, ErrCorrupt)
	}
	return &Semaphore{
		name: name,
		word: wordAt(b, offValue),
		max:  binary.LittleEndian.Uint32(b[offMax:]),
		obj:  obj,
	}, nil
}

// New wraps a word inside memory the caller has already mapped and shares.
// The word must be 4-byte aligned and outlive the semaphore.
func New(word *uint32, initial, max uint32) *Semaphore {
	if max == 0 {
		max = math.MaxUint32
	}
	atomic.StoreUint32(word, initial)
	return &Semaphore{name: "unnamed", word: word, max: max}
}

// Unlink removes a named semaphore. Open handles stay usable.
func Unlink(dir, name string) error {
	return shm.Unlink(dir, name)
}

// Name returns the object name.
func (s *Semaphore) Name() string {
	return s.name
}

// Wait decrements the count, blocking while it is zero.
func (s *Semaphore) Wait() error {
	for {
		v := atomic.LoadUint32(s.word)
		if v > 0 {
			if atomic.CompareAndSwapUint32(s.word, v, v-1) {
				return nil
			}
			continue
		}
		if err := WaitChange(s.word, 0); err != nil {
			return fmt.Errorf("semaphore %s wait: %w", s.name, err)
		}
	}
}

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadUint32(s.word)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.word, v, v-1) {
			return true
		}
	}
}

// Post increments the count and wakes one waiter.
func (s *Semaphore) Post() error {
	for {
		v := atomic.LoadUint32(s.word)
		if v >= s.max {
			return fmt.Errorf("semaphore %s post: %w", s.name, ErrOverflow)
		}
		if atomic.CompareAndSwapUint32(s.word, v, v+1) {
			break
		}
	}
	if err := Wake(s.word, 1); err != nil {
		return fmt.Errorf("semaphore %s wake: %w", s.name, err)
	}
	return nil
}

// Value returns the current count.
func (s *Semaphore) Value() uint32 {
	return atomic.LoadUint32(s.word)
}

// Close unmaps a named semaphore. It is a no-op for unnamed ones.
func (s *Semaphore) Close() error {
	if s.obj == nil {
		return nil
	}
	return s.obj.Close()
}

func wordAt(b []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off]))
}
