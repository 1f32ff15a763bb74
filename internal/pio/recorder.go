package pio

// AccessOp distinguishes reads from writes in a recorded transcript.
type AccessOp byte

const (
	OpRead AccessOp = iota
	OpWrite
)

func (op AccessOp) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Access is a single bus operation. For reads, Value holds the byte that
// was returned.
type Access struct {
	Op    AccessOp
	Port  uint16
	Value byte
}

// Recorder is a Bus that keeps an ordered transcript of every access.
//
// A standalone Recorder serves reads from values preloaded per port and
// accepts all writes. A tee Recorder forwards each access to an underlying
// bus and records what actually happened.
type Recorder struct {
	next     Bus
	accesses []Access
	reads    map[uint16][]byte
}

// NewRecorder returns a standalone recorder. Reads consume preloaded
// values in FIFO order and return zero once a port's queue is exhausted.
func NewRecorder() *Recorder {
	return &Recorder{reads: make(map[uint16][]byte)}
}

// NewTee returns a recorder that forwards every access to next.
func NewTee(next Bus) *Recorder {
	return &Recorder{next: next}
}

// Preload queues values to be returned by future reads of port. It has no
// effect on a tee recorder.
func (r *Recorder) Preload(port uint16, values ...byte) {
	if r.reads == nil {
		return
	}
	r.reads[port] = append(r.reads[port], values...)
}

// ReadPort8 implements Bus.
func (r *Recorder) ReadPort8(port uint16) (byte, error) {
	var value byte
	if r.next != nil {
		got, err := r.next.ReadPort8(port)
		if err != nil {
			return 0, err
		}
		value = got
	} else if queued := r.reads[port]; len(queued) > 0 {
		value = queued[0]
		r.reads[port] = queued[1:]
	}
	r.accesses = append(r.accesses, Access{Op: OpRead, Port: port, Value: value})
	return value, nil
}

// WritePort8 implements Bus.
func (r *Recorder) WritePort8(port uint16, value byte) error {
	if r.next != nil {
		if err := r.next.WritePort8(port, value); err != nil {
			return err
		}
	}
	r.accesses = append(r.accesses, Access{Op: OpWrite, Port: port, Value: value})
	return nil
}

// Accesses returns a copy of the transcript in access order.
func (r *Recorder) Accesses() []Access {
	out := make([]Access, len(r.accesses))
	copy(out, r.accesses)
	return out
}

// Writes returns just the writes from the transcript, in order.
func (r *Recorder) Writes() []Access {
	var out []Access
	for _, a := range r.accesses {
		if a.Op == OpWrite {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of recorded accesses.
func (r *Recorder) Len() int { return len(r.accesses) }

// Reset discards the transcript and any unconsumed preloaded reads.
func (r *Recorder) Reset() {
	r.accesses = nil
	if r.reads != nil {
		r.reads = make(map[uint16][]byte)
	}
}

var _ Bus = (*Recorder)(nil)
