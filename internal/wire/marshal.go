package wire

import "encoding/binary"

// MarshalWord encodes a 4-byte little-endian word, the uniform unit the
// forkserver handshake and per-exec protocol are built from.
func MarshalWord(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// UnmarshalWord decodes a 4-byte little-endian word. Returns an error if
// fewer than 4 bytes are available, which the client treats as a
// handshake/protocol failure (spec §7 "Oracle protocol").
func UnmarshalWord(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, errShortRead
	}
	return binary.LittleEndian.Uint32(data[:4]), nil
}

// MarshalStatusWord encodes the handshake status word.
func MarshalStatusWord(s StatusWord) []byte {
	return MarshalWord(s.Features)
}

// UnmarshalStatusWord decodes the handshake status word.
func UnmarshalStatusWord(data []byte) (StatusWord, error) {
	v, err := UnmarshalWord(data)
	if err != nil {
		return StatusWord{}, err
	}
	return StatusWord{Features: v}, nil
}

// MarshalExecCmd encodes a per-execution command word.
func MarshalExecCmd(c ExecCmd) []byte {
	return MarshalWord(c.Encode())
}

// UnmarshalExecCmd decodes a per-execution command word.
func UnmarshalExecCmd(data []byte) (ExecCmd, error) {
	v, err := UnmarshalWord(data)
	if err != nil {
		return ExecCmd{}, err
	}
	return DecodeExecCmd(v), nil
}

// MarshalPID encodes the grandchild pid the server reports after forking.
func MarshalPID(pid int32) []byte {
	return MarshalWord(uint32(pid))
}

// UnmarshalPID decodes the grandchild pid.
func UnmarshalPID(data []byte) (int32, error) {
	v, err := UnmarshalWord(data)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// MarshalExecStatus encodes the post-execution status word.
func MarshalExecStatus(s ExecStatus) []byte {
	return MarshalWord(s.Raw)
}

// UnmarshalExecStatus decodes the post-execution status word.
func UnmarshalExecStatus(data []byte) (ExecStatus, error) {
	v, err := UnmarshalWord(data)
	if err != nil {
		return ExecStatus{}, err
	}
	return ExecStatus{Raw: v}, nil
}

var errShortRead = shortReadError{}

type shortReadError struct{}

func (shortReadError) Error() string { return "wire: short read, expected 4 bytes" }
