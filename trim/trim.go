// Package trim holds the built-in trimmer: the always-available,
// never-proposing implementation of internal/interfaces.Trimmer. The
// plugin surface named in spec §9 ("Mutator plugins") is otherwise out
// of this core's scope; Null is the one concrete, shippable instance of
// the interface, the same role backend/mem.go plays as the teacher's
// one concrete, always-available Backend implementation.
package trim

import "github.com/ehrlich-b/go-tmin/internal/interfaces"

// Null is a Trimmer that never proposes a candidate. Driving a run with
// no trimmers configured is equivalent to running it with Null: the
// built-in Stage 1-3 always take over.
type Null struct {
	original []byte
}

var _ interfaces.Trimmer = &Null{}

func (n *Null) Init(original []byte) error        { n.original = original; return nil }
func (Null) Propose() (candidate []byte, ok bool) { return nil, false }
func (Null) Feedback(accepted bool)               {}
func (n *Null) Finish() []byte                    { return n.original }

// RunSequence drives an ordered sequence of trimmers over original. If
// any trimmer in the sequence reduces the buffer at all, the built-in
// Stages 1-3 are skipped for this invocation (spec §9) and the return
// value's reduced flag is true.
func RunSequence(trimmers []interfaces.Trimmer, original []byte, query func([]byte) (bool, error)) (result []byte, reduced bool, err error) {
	current := original
	for _, tr := range trimmers {
		if err := tr.Init(current); err != nil {
			return current, reduced, err
		}
		for {
			candidate, ok := tr.Propose()
			if !ok {
				break
			}
			accepted, err := query(candidate)
			if err != nil {
				return current, reduced, err
			}
			tr.Feedback(accepted)
			if accepted {
				reduced = true
			}
		}
		current = tr.Finish()
	}
	return current, reduced, nil
}
