package engine

// stage0 partitions B into blocks of length max(next_pow2(|B|/10), 16)
// and proposes replacing each non-canonical block with all '0' (spec
// §4.2 "Stage 0").
func (e *Engine) stage0() error {
	b := e.buf.Accepted()
	if len(b) == 0 {
		return nil
	}
	blockLen := nextPow2(len(b) / 10)
	if blockLen < 16 {
		blockLen = 16
	}

	for start := 0; start < len(e.buf.Accepted()); start += blockLen {
		b = e.buf.Accepted()
		end := start + blockLen
		if end > len(b) {
			end = len(b)
		}
		if allZeroByte(b[start:end]) {
			continue
		}

		t := e.buf.Scratch(len(b))
		copy(t, b)
		for i := start; i < end; i++ {
			t[i] = '0'
		}

		ok, err := e.query(t)
		if err != nil {
			return err
		}
		if ok {
			e.buf.Commit(t)
			e.stats.Stage0Accepted++
		}
	}
	return nil
}

// stage1 repeatedly sweeps B deleting blocks of a halving length,
// skipping a query when the block equals its immediate predecessor and
// the predecessor was not itself just deleted (spec §4.2 "Stage 1"). The
// starting length is never below DelLenFloor. The sweep is a do-while: it
// always runs at the starting length first, then halves and sweeps again
// as long as the length just swept was still above DelLenFloor, so a
// sweep at a length no greater than DelLenFloor always runs rather than
// being skipped.
func (e *Engine) stage1() (bool, error) {
	changedAny := false
	length := nextPow2(len(e.buf.Accepted()) / 1024)
	if length < e.cfg.DelLenFloor {
		length = e.cfg.DelLenFloor
	}

	for {
		if err := e.checkStop(); err != nil {
			return changedAny, err
		}

		p := 0
		justDeleted := false
		for p < len(e.buf.Accepted()) {
			b := e.buf.Accepted()
			tail := len(b) - p - length
			if tail < 0 {
				tail = 0
			}

			if !justDeleted && tail > 0 && p >= length &&
				bytesEqual(b[p-length:p], b[p:p+length]) {
				p += length
				continue
			}

			end := p + length
			if end > len(b) {
				end = len(b)
			}
			t := e.buf.Scratch(len(b) - (end - p))
			n := copy(t, b[:p])
			copy(t[n:], b[end:])

			ok, err := e.query(t)
			if err != nil {
				return changedAny, err
			}
			if ok {
				e.buf.Commit(t)
				e.stats.Stage1Accepted++
				changedAny = true
				justDeleted = true
				// p stays put: the tail shifted left into its place.
			} else {
				p += length
				justDeleted = false
			}
		}

		if length <= e.cfg.DelLenFloor {
			break
		}
		length /= 2
	}

	return changedAny, nil
}

// stage2 replaces every occurrence of each distinct non-'0' byte value
// with '0', one value at a time (spec §4.2 "Stage 2").
func (e *Engine) stage2() (bool, error) {
	changedAny := false

	var histogram [256]int
	for _, c := range e.buf.Accepted() {
		histogram[c]++
	}

	for v := 0; v < 256; v++ {
		if v == '0' || histogram[v] == 0 {
			continue
		}
		if err := e.checkStop(); err != nil {
			return changedAny, err
		}

		b := e.buf.Accepted()
		t := e.buf.Scratch(len(b))
		copy(t, b)
		for i, c := range t {
			if c == byte(v) {
				t[i] = '0'
			}
		}

		ok, err := e.query(t)
		if err != nil {
			return changedAny, err
		}
		if ok {
			e.buf.Commit(t)
			e.stats.Stage2Accepted++
			changedAny = true
		}
	}

	return changedAny, nil
}

// stage3 tries to canonicalize each remaining non-'0' byte individually,
// restoring it on rejection (spec §4.2 "Stage 3").
func (e *Engine) stage3() (bool, error) {
	changedAny := false
	b := e.buf.Accepted()
	t := e.buf.Scratch(len(b))
	copy(t, b)

	for i := 0; i < len(t); i++ {
		if t[i] == '0' {
			continue
		}
		if err := e.checkStop(); err != nil {
			return changedAny, err
		}

		orig := t[i]
		t[i] = '0'

		ok, err := e.query(t)
		if err != nil {
			return changedAny, err
		}
		if ok {
			e.buf.Commit(t)
			e.stats.Stage3Accepted++
			changedAny = true
		} else {
			t[i] = orig
		}
	}

	return changedAny, nil
}

func allZeroByte(b []byte) bool {
	for _, c := range b {
		if c != '0' {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
