// Package shmname derives the names of the shared-memory objects that belong
// to one run from the operator-supplied suffix.
//
// A run owns three objects, all named after the segment:
//
//	shmdag_<suffix>              the segment itself
//	sem.shmdag_<suffix>_mutex    counter-mutex semaphore
//	sem.shmdag_<suffix>_writer   writer-exclusion semaphore
//
// The "sem." prefix matches the glibc convention for named semaphores, so
// the objects group together in a listing of /dev/shm.
package shmname

import (
	"fmt"
	"regexp"
)

// Prefix is prepended to every segment name.
const Prefix = "shmdag_"

// Semaphore roles.
const (
	RoleMutex  = "mutex"
	RoleWriter = "writer"
)

// nameMax is NAME_MAX on Linux and the BSDs.
const nameMax = 255

var suffixRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Name identifies the shared objects of one run.
type Name struct {
	suffix string
}

// Parse validates an operator-supplied suffix.
func Parse(suffix string) (Name, error) {
	if suffix == "" {
		return Name{}, fmt.Errorf("shared memory suffix cannot be empty")
	}
	if !suffixRegex.MatchString(suffix) {
		return Name{}, fmt.Errorf("invalid shared memory suffix %q: only letters, digits, '_', '.' and '-' are allowed", suffix)
	}
	if suffix == "." || suffix == ".." {
		return Name{}, fmt.Errorf("invalid shared memory suffix %q", suffix)
	}
	n := Name{suffix: suffix}
	if l := len(n.Semaphore(RoleWriter)); l > nameMax {
		return Name{}, fmt.Errorf("shared memory suffix too long: derived name is %d bytes, limit %d", l, nameMax)
	}
	return n, nil
}

// MustParse is like Parse but panics on error. It is meant for tests and
// constants.
func MustParse(suffix string) Name {
	n, err := Parse(suffix)
	if err != nil {
		panic(err)
	}
	return n
}

// Suffix returns the operator-supplied part.
func (n Name) Suffix() string {
	return n.suffix
}

// Segment returns the object name of the segment.
func (n Name) Segment() string {
	return Prefix + n.suffix
}

// Semaphore returns the object name of the semaphore with the given role.
func (n Name) Semaphore(role string) string {
	return "sem." + n.Segment() + "_" + role
}

// String returns the POSIX form of the segment name, with a leading slash.
func (n Name) String() string {
	return "/" + n.Segment()
}

// IsZero reports whether n was never parsed.
func (n Name) IsZero() bool {
	return n.suffix == ""
}
