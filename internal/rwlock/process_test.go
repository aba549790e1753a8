//go:build linux

package rwlock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"testing"

	"github.com/specialistvlad/shmdag/internal/semaphore"
	"github.com/specialistvlad/shmdag/internal/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	stressRoleEnv = "RWLOCK_STRESS_ROLE"
	stressDirEnv  = "RWLOCK_STRESS_DIR"

	stressObject = "rwlock_stress"
	stressMutex  = "sem.rwlock_stress_mutex"
	stressWriter = "sem.rwlock_stress_writer"

	stressIters = 300

	// The object holds the lock state at 0 and the guarded payload at
	// payloadOff: an 8-byte write counter followed by a fill pattern that
	// always equals the low byte of the counter.
	payloadOff  = 64
	payloadSize = 512
)

// TestMain turns the test binary into a stress participant when the role
// variable is set.
func TestMain(m *testing.M) {
	if role := os.Getenv(stressRoleEnv); role != "" {
		os.Exit(stressChild(role, os.Getenv(stressDirEnv)))
	}
	os.Exit(m.Run())
}

type stressRegion struct {
	obj    *shm.Object
	mutex  *semaphore.Semaphore
	writer *semaphore.Semaphore
	lock   *Lock
}

func openStressRegion(dir string) (*stressRegion, error) {
	obj, err := shm.Open(dir, stressObject)
	if err != nil {
		return nil, err
	}
	r := &stressRegion{obj: obj}
	if r.mutex, err = semaphore.Open(dir, stressMutex); err != nil {
		r.Close()
		return nil, err
	}
	if r.writer, err = semaphore.Open(dir, stressWriter); err != nil {
		r.Close()
		return nil, err
	}
	if r.lock, err = New(obj.Bytes()[:StateSize], r.mutex, r.writer); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *stressRegion) Close() {
	if r.writer != nil {
		r.writer.Close()
	}
	if r.mutex != nil {
		r.mutex.Close()
	}
	r.obj.Close()
}

// stressChild returns 0 on success, 1 on a lock or consistency error and 2
// when the region cannot be opened.
func stressChild(role, dir string) int {
	r, err := openStressRegion(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer r.Close()

	b := r.obj.Bytes()
	counter := b[payloadOff : payloadOff+8]
	pattern := b[payloadOff+8 : payloadOff+payloadSize]

	for i := 0; i < stressIters; i++ {
		switch role {
		case "writer":
			err = r.lock.WithWrite(func() error {
				n := binary.LittleEndian.Uint64(counter) + 1
				for j := range pattern {
					pattern[j] = byte(n)
					if j%64 == 0 {
						runtime.Gosched()
					}
				}
				binary.LittleEndian.PutUint64(counter, n)
				return nil
			})
		case "reader":
			err = r.lock.WithRead(func() error {
				want := byte(binary.LittleEndian.Uint64(counter))
				for j, got := range pattern {
					if got != want {
						return fmt.Errorf("torn read at byte %d: got %d, want %d", j, got, want)
					}
					if j%64 == 0 {
						runtime.Gosched()
					}
				}
				return nil
			})
		default:
			err = fmt.Errorf("unknown role %q", role)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}

func TestStress_AcrossProcesses(t *testing.T) {
	dir := t.TempDir()

	obj, err := shm.Create(dir, stressObject, payloadOff+payloadSize)
	require.NoError(t, err)
	defer obj.Close()
	Reset(obj.Bytes()[:StateSize])

	mutex, err := semaphore.Create(dir, stressMutex, 1, 1)
	require.NoError(t, err)
	defer mutex.Close()
	writer, err := semaphore.Create(dir, stressWriter, 1, 1)
	require.NoError(t, err)
	defer writer.Close()

	roles := []string{"writer", "reader", "writer", "reader", "reader", "reader"}
	var g errgroup.Group
	for i, role := range roles {
		cmd := exec.Command(os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), stressRoleEnv+"="+role, stressDirEnv+"="+dir)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		g.Go(func() error {
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("%s #%d: %w: %s", role, i, err, stderr.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	writers := 0
	for _, role := range roles {
		if role == "writer" {
			writers++
		}
	}
	b := obj.Bytes()
	assert.Equal(t, uint64(writers*stressIters), binary.LittleEndian.Uint64(b[payloadOff:]), "no write was lost")

	l, err := New(b[:StateSize], mutex, writer)
	require.NoError(t, err)
	assert.Zero(t, l.Readers())
	assert.Zero(t, l.WaitingWriters())
	assert.Equal(t, uint32(1), mutex.Value())
	assert.Equal(t, uint32(1), writer.Value())
}
