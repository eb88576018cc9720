package pagestore

import (
	"encoding/binary"
	"fmt"
	"syscall"
)

// pageRead dereferences a page pointer, checking pending in-place updates
// and not-yet-flushed temp pages before falling back to the mmap.
func (s *Store) pageRead(ptr uint64) []byte {
	if page, ok := s.page.updates[ptr]; ok {
		return page
	}
	if ptr >= s.page.flushed {
		idx := ptr - s.page.flushed
		if idx < uint64(len(s.page.temp)) {
			return s.page.temp[idx]
		}
	}
	start := uint64(0)
	for _, chunk := range s.mmap.chunks {
		end := start + uint64(len(chunk))/pageSize
		if ptr < end {
			offset := pageSize * (ptr - start)
			return chunk[offset : offset+pageSize]
		}
		start = end
	}
	panic(fmt.Sprintf("pagestore: bad page pointer %d (flushed %d, temp %d)", ptr, s.page.flushed, len(s.page.temp)))
}

func (s *Store) pageAlloc(node []byte) uint64 {
	if len(node) != pageSize {
		panic("pagestore: page size mismatch")
	}
	if ptr := s.free.PopHead(); ptr != 0 {
		s.page.updates[ptr] = node
		return ptr
	}
	return s.pageAppend(node)
}

func (s *Store) pageAppend(node []byte) uint64 {
	if len(node) != pageSize {
		panic("pagestore: page size mismatch")
	}
	ptr := s.page.flushed + uint64(len(s.page.temp))
	s.page.temp = append(s.page.temp, node)
	return ptr
}

func (s *Store) pageWrite(ptr uint64, node []byte) {
	if len(node) != pageSize {
		panic("pagestore: page size mismatch")
	}
	s.page.updates[ptr] = node
}

func (s *Store) pageFree(ptr uint64) {
	if ptr < s.page.flushed {
		s.free.PushTail(ptr)
	}
}

func (s *Store) saveMeta() []byte {
	data := make([]byte, metaPageSize)
	copy(data[:16], []byte(dbSignature))
	binary.LittleEndian.PutUint64(data[16:], s.tree.GetRoot())
	binary.LittleEndian.PutUint64(data[24:], s.page.flushed)
	copy(data[32:], s.free.Serialize())
	return data
}

func (s *Store) loadMeta(data []byte) {
	s.tree.SetRoot(binary.LittleEndian.Uint64(data[16:]))
	s.page.flushed = binary.LittleEndian.Uint64(data[24:])
	s.free.Deserialize(data[32:72])
}

func (s *Store) readMeta() error {
	data := s.mmap.chunks[0][:metaPageSize]
	if string(data[:16]) != dbSignature {
		return fmt.Errorf("pagestore: invalid database signature %q", string(data[:16]))
	}
	s.loadMeta(data)
	return nil
}

// commitOrRevert is the two-phase fsync update: new/updated pages are
// written and fsynced before the meta page is overwritten and fsynced
// again, so a crash between the two leaves the old meta page (and thus the
// old tree) intact. On any failure the in-memory state reverts to meta and
// the store is marked failed, so the next successful write redoes the
// meta-page write that may have been lost.
func (s *Store) commitOrRevert(meta []byte) error {
	if s.failed {
		if err := s.writeMeta(meta); err != nil {
			return err
		}
		if err := syscall.Fsync(s.fd); err != nil {
			return err
		}
		s.failed = false
	}

	savedMaxSeq := s.free.maxSeq
	s.free.SetMaxSeq()

	err := s.updateFile()
	if err != nil {
		s.loadMeta(meta)
		s.page.temp = s.page.temp[:0]
		s.page.updates = make(map[uint64][]byte)
		s.free.maxSeq = savedMaxSeq
		s.failed = true
		return err
	}
	s.free.maxSeq = s.free.tailSeq
	return nil
}

func (s *Store) updateFile() error {
	if err := s.writePages(); err != nil {
		return err
	}
	if err := syscall.Fsync(s.fd); err != nil {
		return err
	}
	if err := s.writeMeta(s.saveMeta()); err != nil {
		return err
	}
	return syscall.Fsync(s.fd)
}

func (s *Store) writePages() error {
	for ptr, page := range s.page.updates {
		offset := int64(ptr * pageSize)
		if _, err := syscall.Pwrite(s.fd, page, offset); err != nil {
			return err
		}
	}
	s.page.updates = make(map[uint64][]byte)

	if len(s.page.temp) == 0 {
		return nil
	}

	size := int(s.page.flushed+uint64(len(s.page.temp))) * pageSize
	if err := s.extendMmap(size); err != nil {
		return err
	}

	offset := int64(s.page.flushed * pageSize)
	for _, page := range s.page.temp {
		if _, err := syscall.Pwrite(s.fd, page, offset); err != nil {
			return err
		}
		offset += pageSize
	}
	s.page.flushed += uint64(len(s.page.temp))
	s.page.temp = s.page.temp[:0]
	return nil
}

func (s *Store) writeMeta(data []byte) error {
	if _, err := syscall.Pwrite(s.fd, data, 0); err != nil {
		return fmt.Errorf("pagestore: write meta page: %w", err)
	}
	return nil
}

func (s *Store) extendMmap(size int) error {
	if size <= s.mmap.total {
		return nil
	}
	alloc := s.mmap.total
	if alloc < 64<<20 {
		alloc = 64 << 20
	}
	for s.mmap.total+alloc < size {
		alloc *= 2
	}
	chunk, err := syscall.Mmap(s.fd, int64(s.mmap.total), alloc, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pagestore: mmap: %w", err)
	}
	s.mmap.total += alloc
	s.mmap.chunks = append(s.mmap.chunks, chunk)
	return nil
}
