// Package heap implements the slotted heap file: a 4-byte free-list-head
// header followed by an array of equal-sized record slots, with deleted
// slots recycled through an in-file free-list chained via each slot's
// trailing `next` field.
package heap

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jochuuuu/reldb/internal/record"
)

const headerSize = 4

// File is one table's heap file: one fixed record size, one free-list head.
// Every operation opens, seeks, and closes the underlying os.File — no
// handle is held open across calls, matching the single-writer,
// open-per-operation resource model.
type File struct {
	path       string
	recordSize int
}

// Open returns a File handle for path, initializing it (header = End, zero
// slots) if it does not already exist.
func Open(path string, recordSize int) (*File, error) {
	f := &File{path: path, recordSize: recordSize}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := f.initialize(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) initialize() error {
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("heap: init %s: %w", f.path, err)
	}
	defer fh.Close()
	var hdr [headerSize]byte
	end := record.End
	binary.LittleEndian.PutUint32(hdr[:], uint32(end))
	if _, err := fh.Write(hdr[:]); err != nil {
		return fmt.Errorf("heap: write header %s: %w", f.path, err)
	}
	return nil
}

func (f *File) open(flag int) (*os.File, error) {
	fh, err := os.OpenFile(f.path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("heap: open %s: %w", f.path, err)
	}
	return fh, nil
}

func (f *File) slotOffset(id int32) int64 {
	return int64(headerSize) + int64(id-1)*int64(f.recordSize)
}

func (f *File) readHeader(fh *os.File) (int32, error) {
	var buf [headerSize]byte
	if _, err := fh.ReadAt(buf[:], 0); err != nil {
		return 0, fmt.Errorf("heap: read header: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (f *File) writeHeader(fh *os.File, head int32) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(head))
	_, err := fh.WriteAt(buf[:], 0)
	return err
}

// SlotCount returns the number of slots currently in the file (live or
// free), derived from the file size.
func (f *File) SlotCount() (int64, error) {
	fh, err := f.open(os.O_RDONLY)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return 0, fmt.Errorf("heap: stat %s: %w", f.path, err)
	}
	return (info.Size() - headerSize) / int64(f.recordSize), nil
}

// Insert writes raw into a new or recycled slot and returns its 1-based
// record id. raw must already carry `next = record.Live` encoded at its
// tail (callers build it via record.Codec.Encode(row, record.Live)).
//
// Free-list discipline: if the header is not End, the slot it names is
// reused — that slot's own `next` field becomes the new header value before
// the slot is overwritten. Otherwise a new slot is appended at end of file.
func (f *File) Insert(raw []byte) (int32, error) {
	if len(raw) != f.recordSize {
		return 0, fmt.Errorf("heap: record size mismatch: expected %d, got %d", f.recordSize, len(raw))
	}
	fh, err := f.open(os.O_RDWR)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	head, err := f.readHeader(fh)
	if err != nil {
		return 0, err
	}

	if head != record.End {
		id := head
		slot := make([]byte, f.recordSize)
		if _, err := fh.ReadAt(slot, f.slotOffset(id)); err != nil {
			return 0, fmt.Errorf("heap: read recycled slot %d: %w", id, err)
		}
		nextFree := int32(binary.LittleEndian.Uint32(slot[f.recordSize-4:]))
		if err := f.writeHeader(fh, nextFree); err != nil {
			return 0, fmt.Errorf("heap: write header: %w", err)
		}
		if _, err := fh.WriteAt(raw, f.slotOffset(id)); err != nil {
			return 0, fmt.Errorf("heap: write recycled slot %d: %w", id, err)
		}
		return id, nil
	}

	count, err := f.SlotCount()
	if err != nil {
		return 0, err
	}
	id := int32(count) + 1
	if _, err := fh.WriteAt(raw, f.slotOffset(id)); err != nil {
		return 0, fmt.Errorf("heap: append slot %d: %w", id, err)
	}
	return id, nil
}

// Read returns the raw bytes of the slot for id, or ok=false if id is out of
// range. It does not check liveness; callers inspect the trailing `next`
// field themselves.
func (f *File) Read(id int32) (raw []byte, ok bool, err error) {
	fh, err := f.open(os.O_RDONLY)
	if err != nil {
		return nil, false, err
	}
	defer fh.Close()

	count, err := f.SlotCount()
	if err != nil {
		return nil, false, err
	}
	if id < 1 || int64(id) > count {
		return nil, false, nil
	}
	buf := make([]byte, f.recordSize)
	if _, err := fh.ReadAt(buf, f.slotOffset(id)); err != nil {
		return nil, false, fmt.Errorf("heap: read slot %d: %w", id, err)
	}
	return buf, true, nil
}

// Overwrite replaces the slot for id with raw in place, without touching the
// free list.
func (f *File) Overwrite(id int32, raw []byte) error {
	if len(raw) != f.recordSize {
		return fmt.Errorf("heap: record size mismatch: expected %d, got %d", f.recordSize, len(raw))
	}
	fh, err := f.open(os.O_RDWR)
	if err != nil {
		return err
	}
	defer fh.Close()
	if _, err := fh.WriteAt(raw, f.slotOffset(id)); err != nil {
		return fmt.Errorf("heap: overwrite slot %d: %w", id, err)
	}
	return nil
}

// Delete frees the slot for id if it is currently live (next == Live); a
// no-op if already deleted. The slot's `next` becomes the current free-list
// head and the header is updated to point at id.
func (f *File) Delete(id int32) error {
	fh, err := f.open(os.O_RDWR)
	if err != nil {
		return err
	}
	defer fh.Close()

	slot := make([]byte, f.recordSize)
	if _, err := fh.ReadAt(slot, f.slotOffset(id)); err != nil {
		return fmt.Errorf("heap: read slot %d: %w", id, err)
	}
	next := int32(binary.LittleEndian.Uint32(slot[f.recordSize-4:]))
	if next != record.Live {
		return nil // already deleted
	}

	head, err := f.readHeader(fh)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(slot[f.recordSize-4:], uint32(head))
	if _, err := fh.WriteAt(slot, f.slotOffset(id)); err != nil {
		return fmt.Errorf("heap: write freed slot %d: %w", id, err)
	}
	return f.writeHeader(fh, id)
}

// LiveScan returns every record id whose slot is currently live, in
// ascending id order.
func (f *File) LiveScan() ([]int32, error) {
	fh, err := f.open(os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	count, err := f.SlotCount()
	if err != nil {
		return nil, err
	}
	var ids []int32
	buf := make([]byte, f.recordSize)
	for id := int32(1); int64(id) <= count; id++ {
		if _, err := fh.ReadAt(buf, f.slotOffset(id)); err != nil {
			return nil, fmt.Errorf("heap: scan slot %d: %w", id, err)
		}
		next := int32(binary.LittleEndian.Uint32(buf[f.recordSize-4:]))
		if next == record.Live {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// IsLive reports whether id currently names a live slot.
func (f *File) IsLive(id int32) (bool, error) {
	raw, ok, err := f.Read(id)
	if err != nil || !ok {
		return false, err
	}
	next := int32(binary.LittleEndian.Uint32(raw[f.recordSize-4:]))
	return next == record.Live, nil
}
