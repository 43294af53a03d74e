// Package store implements the durable, lock-serialised job queue:
// spec.md §4.A. The state file is not an in-memory structure shared
// across processes — it is the queue. Every operation here uses the
// file it was constructed with, takes the advisory lock the operation
// needs, and releases it before returning, per spec.md §5's "no in-process
// mutex stands in for the cross-process lock" design note.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sat-sched/sat/internal/flock"
	"github.com/sat-sched/sat/internal/job"
)

// counterSize is the width of the next-id counter header (spec.md §6).
const counterSize = 8

// Store wraps an *os.File open on the state file. It has no in-process
// mutex: the flock(2) lock it takes belongs to the open file
// description, so it does not serialise goroutines of one process that
// share the same *Store against each other.
type Store struct {
	f *os.File
}

// Open opens (creating if absent) the state file at path for use as a
// Store. The caller owns the returned file descriptor's lifetime — it is
// one of the daemon's process-wide singleton fds (spec.md §3) and should
// be closed only at daemon exit.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Store{f: f}, nil
}

// FromFile adapts an already-open file descriptor (e.g. one inherited
// across a daemon re-exec via ExtraFiles) into a Store.
func FromFile(f *os.File) *Store { return &Store{f: f} }

// File returns the underlying file descriptor, for fd-inheritance across
// a re-exec.
func (s *Store) File() *os.File { return s.f }

// Close closes the underlying file descriptor.
func (s *Store) Close() error { return s.f.Close() }

// readCounter reads the next-id counter, treating a file shorter than
// the counter (e.g. an empty one) as counter value 0. A file holding
// only the counter keeps its value, so ids stay monotone after every
// record has been removed.
func readCounter(f *os.File) (uint64, error) {
	size, err := fileSize(f)
	if err != nil {
		return 0, err
	}
	if size < counterSize {
		return 0, nil
	}
	var buf [counterSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return 0, fmt.Errorf("store: read counter: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeCounter(f *os.File, v uint64) error {
	var buf [counterSize]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("store: write counter: %w", err)
	}
	return nil
}

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("store: stat: %w", err)
	}
	return fi.Size(), nil
}

// Append assigns the next id, writes the updated counter, appends j's
// record at the current end of file, fsyncs, and returns the assigned id.
// The exclusive lock is held for the whole operation and released in
// every exit path.
func (s *Store) Append(j *job.Job) (id uint64, err error) {
	err = flock.WithExclusive(s.f, func() error {
		counter, err := readCounter(s.f)
		if err != nil {
			return err
		}
		id = counter + 1
		if err := writeCounter(s.f, id); err != nil {
			return err
		}
		j.ID = id

		size, err := fileSize(s.f)
		if err != nil {
			return err
		}
		if size < counterSize {
			size = counterSize
		}
		var recBuf writeAtBuffer
		if err := job.EncodeRecord(&recBuf, j); err != nil {
			return fmt.Errorf("store: encode record: %w", err)
		}
		if _, err := s.f.WriteAt(recBuf.Bytes(), size); err != nil {
			return fmt.Errorf("store: append record: %w", err)
		}
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("store: fsync: %w", err)
		}
		return nil
	})
	return id, err
}

// Iterate returns a consistent snapshot of every job currently in the
// store, in insertion (scan) order, taken under a shared lock.
func (s *Store) Iterate() ([]*job.Job, error) {
	var jobs []*job.Job
	err := flock.WithShared(s.f, func() error {
		size, err := fileSize(s.f)
		if err != nil {
			return err
		}
		if size <= counterSize {
			return nil
		}
		sr := io.NewSectionReader(s.f, counterSize, size-counterSize)
		for {
			j, err := job.DecodeRecord(sr)
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("store: decode record: %w", err)
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	return jobs, err
}

// Predicate selects which record Remove should remove: the first record
// whose id matches ByID, or, for First, the first record present
// regardless of id (used by run-now's "all").
type Predicate struct {
	byID bool
	id   uint64
}

// ByID matches the record with the given id.
func ByID(id uint64) Predicate { return Predicate{byID: true, id: id} }

// First matches the first record in the store, whatever its id.
func First() Predicate { return Predicate{} }

func (p Predicate) match(j *job.Job) bool {
	if p.byID {
		return j.ID == p.id
	}
	return true
}

// Remove scans the store for the first record matching pred, splices it
// out (copy the tail over the record's offset, truncate, fsync), and
// returns it. removed is false if no record matched; in that case the
// store is left untouched. The exclusive lock is held for the entire scan
// and splice, released in every exit path.
func (s *Store) Remove(pred Predicate) (removed bool, removedJob *job.Job, err error) {
	err = flock.WithExclusive(s.f, func() error {
		size, err := fileSize(s.f)
		if err != nil {
			return err
		}
		if size <= counterSize {
			return nil
		}

		sr := io.NewSectionReader(s.f, counterSize, size-counterSize)
		offset := int64(counterSize)
		for {
			recStart := offset
			j, decErr := job.DecodeRecord(sr)
			if decErr == io.EOF {
				return nil // no match
			}
			if decErr != nil {
				return fmt.Errorf("store: decode record: %w", decErr)
			}
			recSize := job.RecordSize(j)
			offset += recSize

			if !pred.match(j) {
				continue
			}

			tailStart := recStart + recSize
			tailLen := size - tailStart
			tail := make([]byte, tailLen)
			if tailLen > 0 {
				if _, err := s.f.ReadAt(tail, tailStart); err != nil {
					return fmt.Errorf("store: read tail: %w", err)
				}
			}
			if tailLen > 0 {
				if _, err := s.f.WriteAt(tail, recStart); err != nil {
					return fmt.Errorf("store: write tail: %w", err)
				}
			}
			newSize := size - recSize
			if err := s.f.Truncate(newSize); err != nil {
				return fmt.Errorf("store: truncate: %w", err)
			}
			if err := s.f.Sync(); err != nil {
				return fmt.Errorf("store: fsync: %w", err)
			}
			removed = true
			removedJob = j
			return nil
		}
	})
	return removed, removedJob, err
}

// IsNonEmpty reports whether the store currently holds any jobs.
func (s *Store) IsNonEmpty() (bool, error) {
	size, err := fileSize(s.f)
	if err != nil {
		return false, err
	}
	return size > counterSize, nil
}

// writeAtBuffer is a tiny io.Writer accumulating bytes for a single
// WriteAt call, so Append performs one write syscall per record instead
// of two (header, then payload).
type writeAtBuffer struct {
	buf []byte
}

func (b *writeAtBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *writeAtBuffer) Bytes() []byte { return b.buf }
