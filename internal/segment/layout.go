package segment

import (
	"encoding/binary"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/specialistvlad/shmdag/internal/node"
)

// Magic opens every segment.
const Magic = "SHMDAG01"

// LayoutVersion is bumped whenever the byte layout changes.
const LayoutVersion = 1

// Section sizes. Every section starts on an 8-byte boundary.
const (
	HeaderSize    = 64
	LockStateSize = 64
	SlotSize      = 128
	// DetailMax is the number of detail bytes a slot can hold.
	DetailMax = 88
)

// Header field offsets.
const (
	offMagic      = 0
	offVersion    = 8
	offNodeCount  = 12
	offSlotSize   = 16
	offRunState   = 20
	offTopoOffset = 24
	offTopoLen    = 28
	offLockOffset = 32
	offTableOff   = 36
	offTotalSize  = 40
	offRunID      = 48
)

// Slot field offsets.
const (
	slotStatus    = 0
	slotSeq       = 4
	slotPID       = 8
	slotExit      = 12
	slotStarted   = 16
	slotFinished  = 24
	slotDetailLen = 32
	slotDetail    = 40
)

// Header is the decoded fixed header of a segment.
type Header struct {
	Version        uint32
	NodeCount      int
	SlotSize       int
	RunState       node.RunState
	TopologyOffset int
	TopologyLen    int
	LockOffset     int
	TableOffset    int
	TotalSize      int
	RunID          uuid.UUID
}

// layoutFor computes the header of a segment holding n slots and a topology
// of topoLen bytes.
func layoutFor(n, topoLen int, runID uuid.UUID) Header {
	lockOff := HeaderSize
	topoOff := lockOff + LockStateSize
	tableOff := topoOff + align8(topoLen)
	return Header{
		Version:        LayoutVersion,
		NodeCount:      n,
		SlotSize:       SlotSize,
		RunState:       node.RunActive,
		TopologyOffset: topoOff,
		TopologyLen:    topoLen,
		LockOffset:     lockOff,
		TableOffset:    tableOff,
		TotalSize:      tableOff + n*SlotSize,
		RunID:          runID,
	}
}

func align8(n int) int {
	return (n + 7) &^ 7
}

var le = binary.LittleEndian

// putHeader writes everything but the magic, which the creator writes last.
func putHeader(b []byte, h Header) {
	le.PutUint32(b[offVersion:], h.Version)
	le.PutUint32(b[offNodeCount:], uint32(h.NodeCount))
	le.PutUint32(b[offSlotSize:], uint32(h.SlotSize))
	le.PutUint32(b[offRunState:], uint32(h.RunState))
	le.PutUint32(b[offTopoOffset:], uint32(h.TopologyOffset))
	le.PutUint32(b[offTopoLen:], uint32(h.TopologyLen))
	le.PutUint32(b[offLockOffset:], uint32(h.LockOffset))
	le.PutUint32(b[offTableOff:], uint32(h.TableOffset))
	le.PutUint64(b[offTotalSize:], uint64(h.TotalSize))
	copy(b[offRunID:offRunID+16], h.RunID[:])
}

func readHeader(b []byte) Header {
	var h Header
	h.Version = le.Uint32(b[offVersion:])
	h.NodeCount = int(le.Uint32(b[offNodeCount:]))
	h.SlotSize = int(le.Uint32(b[offSlotSize:]))
	h.RunState = node.RunState(le.Uint32(b[offRunState:]))
	h.TopologyOffset = int(le.Uint32(b[offTopoOffset:]))
	h.TopologyLen = int(le.Uint32(b[offTopoLen:]))
	h.LockOffset = int(le.Uint32(b[offLockOffset:]))
	h.TableOffset = int(le.Uint32(b[offTableOff:]))
	h.TotalSize = int(le.Uint64(b[offTotalSize:]))
	copy(h.RunID[:], b[offRunID:offRunID+16])
	return h
}

// validate checks that the sections of h fit inside a mapping of size bytes.
func (h Header) validate(size int) bool {
	if h.SlotSize != SlotSize || h.LockOffset != HeaderSize {
		return false
	}
	if h.TopologyOffset != h.LockOffset+LockStateSize {
		return false
	}
	if h.TableOffset != h.TopologyOffset+align8(h.TopologyLen) {
		return false
	}
	return h.TableOffset+h.NodeCount*SlotSize == size
}

func encodeSlot(b []byte, s node.Slot) {
	le.PutUint32(b[slotStatus:], uint32(s.Status))
	le.PutUint32(b[slotSeq:], s.Seq)
	le.PutUint32(b[slotPID:], uint32(int32(s.PID)))
	le.PutUint32(b[slotExit:], uint32(int32(s.ExitCode)))
	le.PutUint64(b[slotStarted:], uint64(unixNano(s.StartedAt)))
	le.PutUint64(b[slotFinished:], uint64(unixNano(s.FinishedAt)))

	detail := truncateDetail(s.Detail)
	le.PutUint16(b[slotDetailLen:], uint16(len(detail)))
	clear(b[slotDetail : slotDetail+DetailMax])
	copy(b[slotDetail:], detail)
}

func decodeSlot(b []byte) node.Slot {
	n := int(le.Uint16(b[slotDetailLen:]))
	if n > DetailMax {
		n = DetailMax
	}
	return node.Slot{
		Status:     node.Status(le.Uint32(b[slotStatus:])),
		Seq:        le.Uint32(b[slotSeq:]),
		PID:        int(int32(le.Uint32(b[slotPID:]))),
		ExitCode:   int(int32(le.Uint32(b[slotExit:]))),
		StartedAt:  fromUnixNano(int64(le.Uint64(b[slotStarted:]))),
		FinishedAt: fromUnixNano(int64(le.Uint64(b[slotFinished:]))),
		Detail:     string(b[slotDetail : slotDetail+n]),
	}
}

// truncateDetail cuts s to DetailMax bytes without splitting a rune.
func truncateDetail(s string) string {
	if len(s) <= DetailMax {
		return s
	}
	cut := DetailMax
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
