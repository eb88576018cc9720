package pagestore

import "encoding/binary"

const (
	freeListHeader = 8
	freeListCap    = (pageSize - freeListHeader) / 8
)

// lnode is a free-list page: an 8-byte "next" pointer followed by up to
// freeListCap freed page pointers.
type lnode []byte

func (n lnode) getNext() uint64        { return binary.LittleEndian.Uint64(n[0:8]) }
func (n lnode) setNext(next uint64)    { binary.LittleEndian.PutUint64(n[0:8], next) }
func (n lnode) getPtr(idx int) uint64  { return binary.LittleEndian.Uint64(n[freeListHeader+idx*8:]) }
func (n lnode) setPtr(idx int, p uint64) {
	binary.LittleEndian.PutUint64(n[freeListHeader+idx*8:], p)
}

// freeList is an unrolled linked list of freed pages, reused in preference
// to extending the file. maxSeq freezes the list during a transaction so a
// write can't reuse a page it just freed itself within the same update.
type freeList struct {
	get func(uint64) []byte
	new func([]byte) uint64
	set func(uint64, []byte)

	headPage, headSeq uint64
	tailPage, tailSeq uint64
	maxSeq            uint64
}

func (fl *freeList) Total() int {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	return int(fl.tailSeq - fl.headSeq)
}

func (fl *freeList) PopHead() uint64 {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	if fl.maxSeq > 0 && fl.maxSeq < fl.tailSeq && fl.headSeq >= fl.maxSeq {
		return 0
	}
	if fl.headPage == 0 {
		return 0
	}

	node := lnode(fl.get(fl.headPage))
	idx := int(fl.headSeq % freeListCap)
	ptr := node.getPtr(idx)
	fl.headSeq++

	if fl.headSeq%freeListCap == 0 {
		if next := node.getNext(); next != 0 {
			fl.PushTail(fl.headPage)
			fl.headPage = next
		}
	}
	return ptr
}

func (fl *freeList) PushTail(ptr uint64) {
	if fl.tailPage == 0 {
		page := make([]byte, pageSize)
		lnode(page).setNext(0)
		fl.tailPage = fl.new(page)
	}

	idx := int(fl.tailSeq % freeListCap)
	if idx == 0 && fl.tailSeq > 0 {
		newPage := make([]byte, pageSize)
		lnode(newPage).setNext(0)
		newTail := fl.new(newPage)

		oldPage := make([]byte, pageSize)
		copy(oldPage, fl.get(fl.tailPage))
		lnode(oldPage).setNext(newTail)
		fl.set(fl.tailPage, oldPage)

		fl.tailPage = newTail
		idx = 0
	}

	page := make([]byte, pageSize)
	copy(page, fl.get(fl.tailPage))
	lnode(page).setPtr(idx, ptr)
	fl.set(fl.tailPage, page)
	fl.tailSeq++
}

func (fl *freeList) SetMaxSeq() { fl.maxSeq = fl.tailSeq }

func (fl *freeList) Serialize() []byte {
	data := make([]byte, 40)
	binary.LittleEndian.PutUint64(data[0:], fl.headPage)
	binary.LittleEndian.PutUint64(data[8:], fl.headSeq)
	binary.LittleEndian.PutUint64(data[16:], fl.tailPage)
	binary.LittleEndian.PutUint64(data[24:], fl.tailSeq)
	binary.LittleEndian.PutUint64(data[32:], fl.maxSeq)
	return data
}

func (fl *freeList) Deserialize(data []byte) {
	fl.headPage = binary.LittleEndian.Uint64(data[0:])
	fl.headSeq = binary.LittleEndian.Uint64(data[8:])
	fl.tailPage = binary.LittleEndian.Uint64(data[16:])
	fl.tailSeq = binary.LittleEndian.Uint64(data[24:])
	fl.maxSeq = binary.LittleEndian.Uint64(data[32:])
}
