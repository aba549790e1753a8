// Package segment lays out the shared-memory segment of a run and implements
// nodestore.Store on top of it.
//
// A segment is one fixed-size mapping with four sections:
//
//	header        magic, layout version, section offsets, run state, run id
//	lock state    reader count and waiting-writer count of the MRSW lock
//	topology      msgpack snapshot of the graph, written once
//	status table  one fixed-width slot per node, in graph insertion order
//
// The creating process owns the segment and its two semaphores. Workers and
// inspect open them, and only ever Close. Unlink is reserved for the owner,
// after every worker has been reaped.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
	"github.com/specialistvlad/shmdag/internal/rwlock"
	"github.com/specialistvlad/shmdag/internal/semaphore"
	"github.com/specialistvlad/shmdag/internal/shm"
	"github.com/specialistvlad/shmdag/internal/shmname"
	"github.com/specialistvlad/shmdag/internal/topologystore"
)

// Options configures Create, Open and Remove.
type Options struct {
	// Dir holds the shared-memory objects. Empty means shm.DefaultDir.
	Dir string
	// RunID is stamped into the header by Create. A zero value gets a fresh
	// random id.
	RunID uuid.UUID
	// LockObserver receives lock wait durations.
	LockObserver rwlock.Observer
}

// Segment is a mapped segment. Its methods are safe for concurrent use, and
// Close waits for accessors already inside the mapping to leave it.
type Segment struct {
	// mu is held for reading while the mapping is in use and for writing
	// by Close.
	mu     sync.RWMutex
	closed bool

	name   shmname.Name
	dir    string
	obj    *shm.Object
	mutex  *semaphore.Semaphore
	writer *semaphore.Semaphore
	lock   *rwlock.Lock
	header Header
	graph  *dag.Graph
	owner  bool
	now    func() time.Time
}

var _ nodestore.Store = (*Segment)(nil)

// Create creates the segment for g, fails if it already exists, and creates
// both semaphores with value 1. The caller owns the result.
func Create(ctx context.Context, name shmname.Name, g *dag.Graph, opts Options) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segName := name.Segment()

	topo, err := topologystore.Encode(g)
	if err != nil {
		return nil, segErr("create", segName, ErrCreateFailed, err)
	}
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	h := layoutFor(g.Len(), len(topo), runID)

	obj, err := shm.Create(opts.Dir, segName, h.TotalSize)
	if err != nil {
		return nil, segErr("create", segName, ErrCreateFailed, err)
	}

	b := obj.Bytes()
	putHeader(b, h)
	rwlock.Reset(b[h.LockOffset : h.LockOffset+LockStateSize])
	copy(b[h.TopologyOffset:], topo)
	for i := 0; i < h.NodeCount; i++ {
		encodeSlot(slotBytes(b, h, i), node.Slot{Status: node.StatusPending})
	}
	copy(b[offMagic:offMagic+len(Magic)], Magic)

	mutex, err := semaphore.Create(opts.Dir, name.Semaphore(shmname.RoleMutex), 1, 1)
	if err != nil {
		obj.Close()
		shm.Unlink(opts.Dir, segName)
		return nil, segErr("create", segName, ErrCreateFailed, err)
	}
	writer, err := semaphore.Create(opts.Dir, name.Semaphore(shmname.RoleWriter), 1, 1)
	if err != nil {
		mutex.Close()
		semaphore.Unlink(opts.Dir, mutex.Name())
		obj.Close()
		shm.Unlink(opts.Dir, segName)
		return nil, segErr("create", segName, ErrCreateFailed, err)
	}

	s, err := assemble(name, opts, obj, mutex, writer, h, g)
	if err != nil {
		s.Close()
		s.owner = true
		s.Unlink()
		return nil, segErr("create", segName, ErrCreateFailed, err)
	}
	s.owner = true
	return s, nil
}

// Open maps an existing segment, validates it, decodes the topology and
// opens the semaphores.
func Open(ctx context.Context, name shmname.Name, opts Options) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segName := name.Segment()

	obj, err := shm.Open(opts.Dir, segName)
	if err != nil {
		return nil, segErr("open", segName, ErrOpenFailed, err)
	}
	b := obj.Bytes()
	if len(b) < HeaderSize {
		obj.Close()
		return nil, segErr("open", segName, ErrSizeMismatch, fmt.Errorf("%d bytes is smaller than the header", len(b)))
	}
	if string(b[offMagic:offMagic+len(Magic)]) != Magic {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, errors.New("bad magic"))
	}
	h := readHeader(b)
	if h.Version != LayoutVersion {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, fmt.Errorf("layout version %d, want %d", h.Version, LayoutVersion))
	}
	if h.TotalSize != len(b) {
		obj.Close()
		return nil, segErr("open", segName, ErrSizeMismatch, fmt.Errorf("header says %d bytes, mapped %d", h.TotalSize, len(b)))
	}
	if !h.validate(len(b)) {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, errors.New("inconsistent section offsets"))
	}

	g, err := topologystore.Decode(b[h.TopologyOffset : h.TopologyOffset+h.TopologyLen])
	if err != nil {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, err)
	}
	if g.Len() != h.NodeCount {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, fmt.Errorf("topology has %d nodes, header says %d", g.Len(), h.NodeCount))
	}

	mutex, err := semaphore.Open(opts.Dir, name.Semaphore(shmname.RoleMutex))
	if err != nil {
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, err)
	}
	writer, err := semaphore.Open(opts.Dir, name.Semaphore(shmname.RoleWriter))
	if err != nil {
		mutex.Close()
		obj.Close()
		return nil, segErr("open", segName, ErrOpenFailed, err)
	}

	s, err := assemble(name, opts, obj, mutex, writer, h, g)
	if err != nil {
		s.Close()
		return nil, segErr("open", segName, ErrOpenFailed, err)
	}
	return s, nil
}

func assemble(name shmname.Name, opts Options, obj *shm.Object, mutex, writer *semaphore.Semaphore, h Header, g *dag.Graph) (*Segment, error) {
	s := &Segment{
		name:   name,
		dir:    opts.Dir,
		obj:    obj,
		mutex:  mutex,
		writer: writer,
		header: h,
		graph:  g,
		now:    time.Now,
	}
	var lockOpts []rwlock.Option
	if opts.LockObserver != nil {
		lockOpts = append(lockOpts, rwlock.WithObserver(opts.LockObserver))
	}
	b := obj.Bytes()
	lock, err := rwlock.New(b[h.LockOffset:h.LockOffset+LockStateSize], mutex, writer, lockOpts...)
	if err != nil {
		return s, err
	}
	s.lock = lock
	return s, nil
}

// Remove deletes the segment and semaphore objects of name, whichever exist.
// It is the cleanup for objects left behind by a crashed run and returns the
// names it removed.
func Remove(name shmname.Name, opts Options) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for _, obj := range []string{
		name.Segment(),
		name.Semaphore(shmname.RoleMutex),
		name.Semaphore(shmname.RoleWriter),
	} {
		err := shm.Unlink(opts.Dir, obj)
		switch {
		case err == nil:
			removed = append(removed, obj)
		case !errors.Is(err, fs.ErrNotExist):
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return removed, &Error{Op: "remove", Name: name.Segment(), Err: err}
	}
	return removed, nil
}

// Name returns the run's object names.
func (s *Segment) Name() shmname.Name {
	return s.name
}

// Dir returns the directory the objects live in.
func (s *Segment) Dir() string {
	return s.dir
}

// Header returns the header as it was when the segment was mapped. Use
// RunState for the live run state.
func (s *Segment) Header() Header {
	return s.header
}

// RunID returns the id stamped into the header.
func (s *Segment) RunID() uuid.UUID {
	return s.header.RunID
}

// Graph returns the topology decoded from, or written to, the segment.
func (s *Segment) Graph() *dag.Graph {
	return s.graph
}

// Owner reports whether this process created the segment.
func (s *Segment) Owner() bool {
	return s.owner
}

// Len returns the number of status slots.
func (s *Segment) Len() int {
	return s.header.NodeCount
}

// Get reads slot i under the read lock.
func (s *Segment) Get(ctx context.Context, i int) (node.Slot, error) {
	if err := s.check(ctx, i); err != nil {
		return node.Slot{}, err
	}
	defer s.mu.RUnlock()
	var slot node.Slot
	err := s.lock.WithRead(func() error {
		slot = decodeSlot(slotBytes(s.obj.Bytes(), s.header, i))
		return nil
	})
	return slot, err
}

// Snapshot reads every slot under a single read lock.
func (s *Segment) Snapshot(ctx context.Context) ([]node.Slot, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()
	slots := make([]node.Slot, s.header.NodeCount)
	err := s.lock.WithRead(func() error {
		b := s.obj.Bytes()
		for i := range slots {
			slots[i] = decodeSlot(slotBytes(b, s.header, i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// Transition compares and sets slot i under the write lock.
func (s *Segment) Transition(ctx context.Context, i int, tr node.Transition) (node.Slot, error) {
	if err := s.check(ctx, i); err != nil {
		return node.Slot{}, err
	}
	defer s.mu.RUnlock()
	var slot node.Slot
	err := s.lock.WithWrite(func() error {
		raw := slotBytes(s.obj.Bytes(), s.header, i)
		slot = decodeSlot(raw)
		if err := slot.Apply(tr, s.now()); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		encodeSlot(raw, slot)
		slot = decodeSlot(raw)
		return nil
	})
	return slot, err
}

// RunState reads the run state from the header under the read lock.
func (s *Segment) RunState(ctx context.Context) (node.RunState, error) {
	if err := s.enter(ctx); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()
	var state node.RunState
	err := s.lock.WithRead(func() error {
		state = node.RunState(le.Uint32(s.obj.Bytes()[offRunState:]))
		return nil
	})
	return state, err
}

// SetRunState writes the run state into the header under the write lock.
func (s *Segment) SetRunState(ctx context.Context, state node.RunState) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.lock.WithWrite(func() error {
		le.PutUint32(s.obj.Bytes()[offRunState:], uint32(state))
		return nil
	})
}

// Close unmaps the segment and closes the semaphores. The objects stay in
// place. Close blocks until in-flight calls return; later calls fail with
// ErrOpenFailed. Close is idempotent.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	if s.mutex != nil {
		errs = append(errs, s.mutex.Close())
	}
	if s.obj != nil {
		errs = append(errs, s.obj.Close())
	}
	return errors.Join(errs...)
}

// Unlink removes the segment and both semaphores. Only the owner may call it,
// and only after every process that maps the segment has exited or closed it.
func (s *Segment) Unlink() error {
	if !s.owner {
		return segErr("unlink", s.name.Segment(), ErrNotOwner, nil)
	}
	if _, err := Remove(s.name, Options{Dir: s.dir}); err != nil {
		return err
	}
	return nil
}

// enter read-locks mu for an access to the mapping. On success the caller
// must release it with s.mu.RUnlock.
func (s *Segment) enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	if s.closed || s.lock == nil {
		s.mu.RUnlock()
		return segErr("access", s.name.Segment(), ErrOpenFailed, errors.New("segment is closed"))
	}
	return nil
}

// check is enter plus a bounds check on i.
func (s *Segment) check(ctx context.Context, i int) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	if i < 0 || i >= s.header.NodeCount {
		s.mu.RUnlock()
		return fmt.Errorf("slot %d out of range [0,%d)", i, s.header.NodeCount)
	}
	return nil
}

func slotBytes(b []byte, h Header, i int) []byte {
	off := h.TableOffset + i*SlotSize
	return b[off : off+SlotSize]
}
