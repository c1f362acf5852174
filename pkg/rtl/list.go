package rtl

// ID addresses an instruction in a List. NoID marks the absence of one.
type ID int

const NoID ID = -1

// List is a doubly-linked instruction sequence stored in an arena. Removing
// an instruction unlinks it; its slot is never reused, so IDs stay valid.
type List struct {
	instrs []Instr
	next   []ID
	prev   []ID
	live   []bool
	head   ID
	tail   ID
	length int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{head: NoID, tail: NoID}
}

func (l *List) alloc(in Instr) ID {
	id := ID(len(l.instrs))
	l.instrs = append(l.instrs, in)
	l.next = append(l.next, NoID)
	l.prev = append(l.prev, NoID)
	l.live = append(l.live, true)
	l.length++
	return id
}

// Len returns the number of linked instructions.
func (l *List) Len() int { return l.length }

// First returns the first instruction, or NoID.
func (l *List) First() ID { return l.head }

// Last returns the last instruction, or NoID.
func (l *List) Last() ID { return l.tail }

// Next returns the instruction after id, or NoID.
func (l *List) Next(id ID) ID { return l.next[id] }

// Prev returns the instruction before id, or NoID.
func (l *List) Prev(id ID) ID { return l.prev[id] }

// At returns the instruction stored at id. The pointer stays valid until the
// next insertion.
func (l *List) At(id ID) *Instr { return &l.instrs[id] }

// Contains reports whether id is linked into the list.
func (l *List) Contains(id ID) bool {
	return id >= 0 && int(id) < len(l.live) && l.live[id]
}

// Append adds in at the end of the list.
func (l *List) Append(in Instr) ID {
	id := l.alloc(in)
	l.prev[id] = l.tail
	if l.tail != NoID {
		l.next[l.tail] = id
	} else {
		l.head = id
	}
	l.tail = id
	return id
}

// InsertBefore links in before at. Inserting before NoID appends.
func (l *List) InsertBefore(at ID, in Instr) ID {
	if at == NoID {
		return l.Append(in)
	}
	id := l.alloc(in)
	p := l.prev[at]
	l.prev[id] = p
	l.next[id] = at
	l.prev[at] = id
	if p != NoID {
		l.next[p] = id
	} else {
		l.head = id
	}
	return id
}

// InsertAfter links in after at. Inserting after NoID prepends.
func (l *List) InsertAfter(at ID, in Instr) ID {
	if at == NoID {
		return l.InsertBefore(l.head, in)
	}
	if l.next[at] == NoID {
		return l.Append(in)
	}
	return l.InsertBefore(l.next[at], in)
}

// Remove unlinks id and returns the instruction that followed it.
func (l *List) Remove(id ID) ID {
	if !l.Contains(id) {
		return NoID
	}
	p, n := l.prev[id], l.next[id]
	if p != NoID {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != NoID {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	l.prev[id], l.next[id] = NoID, NoID
	l.live[id] = false
	l.length--
	return n
}

// IDs returns the linked instruction ids in order.
func (l *List) IDs() []ID {
	out := make([]ID, 0, l.length)
	for id := l.head; id != NoID; id = l.next[id] {
		out = append(out, id)
	}
	return out
}

// Instrs returns copies of the linked instructions in order.
func (l *List) Instrs() []Instr {
	out := make([]Instr, 0, l.length)
	for id := l.head; id != NoID; id = l.next[id] {
		out = append(out, l.instrs[id])
	}
	return out
}

// Block is a half-open run [Start, End) of a list. End is NoID for the last
// block.
type Block struct {
	Start ID
	End   ID
}

// Blocks splits the list into basic blocks. A block begins at a labelled
// instruction or after a jump.
func (l *List) Blocks() []Block {
	var out []Block
	start := l.head
	for id := l.head; id != NoID; id = l.next[id] {
		in := &l.instrs[id]
		if in.Label != 0 && id != start {
			out = append(out, Block{Start: start, End: id})
			start = id
		}
		if in.Op.IsJump() {
			n := l.next[id]
			out = append(out, Block{Start: start, End: n})
			start = n
		}
	}
	if start != NoID {
		out = append(out, Block{Start: start, End: NoID})
	}
	return out
}
