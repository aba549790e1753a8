package shmname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		suffix    string
		expectErr string
	}{
		{name: "simple", suffix: "test"},
		{name: "with punctuation", suffix: "run-1.2_a"},
		{name: "empty", suffix: "", expectErr: "cannot be empty"},
		{name: "slash", suffix: "a/b", expectErr: "invalid shared memory suffix"},
		{name: "nul byte", suffix: "a\x00b", expectErr: "invalid shared memory suffix"},
		{name: "space", suffix: "a b", expectErr: "invalid shared memory suffix"},
		{name: "dot", suffix: ".", expectErr: "invalid shared memory suffix"},
		{name: "dot dot", suffix: "..", expectErr: "invalid shared memory suffix"},
		{name: "too long", suffix: strings.Repeat("x", 250), expectErr: "too long"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Parse(tc.suffix)
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErr)
				assert.True(t, n.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.suffix, n.Suffix())
		})
	}
}

func TestDerivedNames(t *testing.T) {
	n := MustParse("test")
	assert.Equal(t, "shmdag_test", n.Segment())
	assert.Equal(t, "/shmdag_test", n.String())
	assert.Equal(t, "sem.shmdag_test_mutex", n.Semaphore(RoleMutex))
	assert.Equal(t, "sem.shmdag_test_writer", n.Semaphore(RoleWriter))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("") })
}
