// Package shm manages named POSIX shared-memory objects.
//
// On Linux shm_open(3) is a thin wrapper that opens a file under /dev/shm, so
// the package does the same directly and maps the file with mmap(2). The
// directory is configurable, which lets tests use a private temporary
// directory and lets other platforms point at any tmpfs mount.
//
// Objects have a fixed size chosen at creation. Resizing a mapping that other
// processes hold is not safe, so the package offers no way to do it.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultDir is where Linux keeps POSIX shared-memory objects.
const DefaultDir = "/dev/shm"

// Object is one mapped shared-memory object.
type Object struct {
	name string
	path string
	data []byte
}

// Create creates the object exclusively, sizes it and maps it read-write. It
// fails with fs.ErrExist if an object of that name already exists.
func Create(dir, name string, size int) (*Object, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm %s: invalid size %d", name, size)
	}
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm create %s: %w", name, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("shm truncate %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("shm mmap %s: %w", name, err)
	}
	return &Object{name: name, path: path, data: data}, nil
}

// Open maps an existing object read-write at its current size.
func Open(dir, name string) (*Object, error) {
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm stat %s: %w", name, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("shm open %s: object is empty", name)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm mmap %s: %w", name, err)
	}
	return &Object{name: name, path: path, data: data}, nil
}

// Anonymous maps a shared anonymous region that is not backed by a name. It
// is shared with children forked from this process and is useful for
// in-process users of the same layout.
func Anonymous(size int) (*Object, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("shm anonymous mmap: %w", err)
	}
	return &Object{name: "anonymous", data: data}, nil
}

// Name returns the object name.
func (o *Object) Name() string {
	return o.name
}

// Path returns the backing file path, or "" for anonymous regions.
func (o *Object) Path() string {
	return o.path
}

// Bytes returns the mapped region. It must not be used after Close.
func (o *Object) Bytes() []byte {
	return o.data
}

// Size returns the mapped size in bytes.
func (o *Object) Size() int {
	return len(o.data)
}

// Close unmaps the object. The name stays in place; see Unlink.
func (o *Object) Close() error {
	if o.data == nil {
		return nil
	}
	err := unix.Munmap(o.data)
	o.data = nil
	if err != nil {
		return fmt.Errorf("shm munmap %s: %w", o.name, err)
	}
	return nil
}

// Unlink removes the object name. Existing mappings stay valid until they are
// closed. Unlinking a name that does not exist returns an error matching
// fs.ErrNotExist.
func Unlink(dir, name string) error {
	path, err := objectPath(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("shm unlink %s: %w", name, err)
	}
	return nil
}

func objectPath(dir, name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid shared memory object name %q", name)
	}
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name), nil
}
