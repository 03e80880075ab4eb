package authorship

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wire layout, all integers big-endian:
//
//	magic "GAI\0"
//	version   u16
//	commit    u8 length + bytes
//	transcript u8 length + bytes (0 when absent)
//	fileCount u32
//	per file:
//	  path      u16 length + bytes
//	  lineCount u32
//	  runCount  u32
//	  runs: runLen u32, kind u8, agentIndex u16 (0xFFFF = no agent)
//	agentCount u16, then per agent: u16 length + bytes
//
// The agent string table sits after the file table so the encoder can
// deduplicate while streaming files.

var magic = [4]byte{'G', 'A', 'I', 0}

const noAgent = uint16(0xFFFF)

// Encode serializes a note. The note is validated first; a malformed note
// is never written.
func Encode(n *Note) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU16(&buf, n.Version)

	if err := writeShortString(&buf, n.Commit); err != nil {
		return nil, fmt.Errorf("encoding commit id: %w", err)
	}
	if err := writeShortString(&buf, n.TranscriptRef); err != nil {
		return nil, fmt.Errorf("encoding transcript ref: %w", err)
	}

	agentIndex := make(map[string]uint16)
	var agents []string
	indexOf := func(id string) (uint16, error) {
		if id == "" {
			return noAgent, nil
		}
		if idx, ok := agentIndex[id]; ok {
			return idx, nil
		}
		if len(agents) >= int(noAgent) {
			return 0, fmt.Errorf("agent table overflow at %q", id)
		}
		idx := uint16(len(agents))
		agentIndex[id] = idx
		agents = append(agents, id)
		return idx, nil
	}

	writeU32(&buf, uint32(len(n.Files)))
	for _, f := range n.Files {
		if len(f.Path) > math.MaxUint16 {
			return nil, fmt.Errorf("path too long: %s", f.Path)
		}
		writeU16(&buf, uint16(len(f.Path)))
		buf.WriteString(f.Path)
		writeU32(&buf, uint32(f.LineCount))
		writeU32(&buf, uint32(len(f.Runs)))
		for _, run := range f.Runs {
			writeU32(&buf, uint32(run.Len))
			buf.WriteByte(byte(run.Kind))
			idx, err := indexOf(run.AgentID)
			if err != nil {
				return nil, err
			}
			writeU16(&buf, idx)
		}
	}

	writeU16(&buf, uint16(len(agents)))
	for _, id := range agents {
		if len(id) > math.MaxUint16 {
			return nil, fmt.Errorf("agent id too long: %s", id)
		}
		writeU16(&buf, uint16(len(id)))
		buf.WriteString(id)
	}

	return buf.Bytes(), nil
}

// Decode parses a note payload, validating magic, version, and tiling.
func Decode(data []byte) (*Note, error) {
	r := &reader{data: data}

	var m [4]byte
	if err := r.read(m[:]); err != nil || m != magic {
		return nil, fmt.Errorf("not an authorship note: bad magic")
	}

	n := &Note{}
	var err error
	if n.Version, err = r.u16(); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if n.Version == 0 || n.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported note version %d", n.Version)
	}
	if n.Commit, err = r.shortString(); err != nil {
		return nil, fmt.Errorf("reading commit id: %w", err)
	}
	if n.TranscriptRef, err = r.shortString(); err != nil {
		return nil, fmt.Errorf("reading transcript ref: %w", err)
	}

	fileCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("reading file count: %w", err)
	}

	type pendingRun struct {
		run      *Run
		agentIdx uint16
	}
	var pending []pendingRun

	n.Files = make([]FileAuthorship, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		pathLen, err := r.u16()
		if err != nil {
			return nil, fmt.Errorf("file %d: reading path length: %w", i, err)
		}
		path, err := r.stringN(int(pathLen))
		if err != nil {
			return nil, fmt.Errorf("file %d: reading path: %w", i, err)
		}
		lineCount, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("%s: reading line count: %w", path, err)
		}
		runCount, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("%s: reading run count: %w", path, err)
		}

		f := FileAuthorship{Path: path, LineCount: int(lineCount), Runs: make([]Run, runCount)}
		for j := range f.Runs {
			runLen, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("%s: reading run %d: %w", path, j, err)
			}
			kind, err := r.u8()
			if err != nil {
				return nil, fmt.Errorf("%s: reading run %d kind: %w", path, j, err)
			}
			if AuthorKind(kind) != Human && AuthorKind(kind) != Agent {
				return nil, fmt.Errorf("%s: run %d has unknown author kind %d", path, j, kind)
			}
			idx, err := r.u16()
			if err != nil {
				return nil, fmt.Errorf("%s: reading run %d agent index: %w", path, j, err)
			}
			f.Runs[j] = Run{Len: int(runLen), Kind: AuthorKind(kind)}
			if idx != noAgent {
				pending = append(pending, pendingRun{run: &f.Runs[j], agentIdx: idx})
			}
		}
		n.Files = append(n.Files, f)
	}

	agentCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading agent table size: %w", err)
	}
	agents := make([]string, agentCount)
	for i := range agents {
		idLen, err := r.u16()
		if err != nil {
			return nil, fmt.Errorf("agent %d: reading length: %w", i, err)
		}
		if agents[i], err = r.stringN(int(idLen)); err != nil {
			return nil, fmt.Errorf("agent %d: reading id: %w", i, err)
		}
	}

	for _, p := range pending {
		if int(p.agentIdx) >= len(agents) {
			return nil, fmt.Errorf("agent index %d out of range (%d agents)", p.agentIdx, len(agents))
		}
		p.run.AgentID = agents[p.agentIdx]
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after note payload", r.remaining())
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// IsNote sniffs the payload magic without a full decode.
func IsNote(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], magic[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeShortString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint8 {
		return fmt.Errorf("string exceeds 255 bytes: %q", s)
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) read(dst []byte) error {
	if r.remaining() < len(dst) {
		return fmt.Errorf("truncated payload")
	}
	copy(dst, r.data[r.off:])
	r.off += len(dst)
	return nil
}

func (r *reader) u8() (byte, error) {
	var b [1]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	var b [2]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (r *reader) u32() (uint32, error) {
	var b [4]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *reader) stringN(n int) (string, error) {
	if r.remaining() < n {
		return "", fmt.Errorf("truncated payload")
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *reader) shortString() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	return r.stringN(int(n))
}
