// Package wire defines the forkserver wire protocol: the handshake status
// word and the per-execution command/pid/status cycle (spec §6
// "Forkserver wire format").
package wire

// Forkserver status-word feature bits, announced by the server on connect
// and echoed back (possibly narrowed) by the client.
const (
	FeatureMapSizeOverride uint32 = 1 << 0 // server will read a 4-byte map size next
	FeatureSharedInput     uint32 = 1 << 1 // server supports shared-memory input delivery
	FeatureAutoDictionary  uint32 = 1 << 2 // server will send an auto-dictionary next
)

// Per-execution command bits. The low bits optionally carry a byte count
// when shared-memory input delivery is in use.
const (
	cmdLenMask   uint32 = 0x00FFFFFF
	cmdShmInput  uint32 = 1 << 31
)

// Per-execution outcome codes, derived by ExecStatus.Classify from the raw
// status word the server returns and the client's own timeout/internal
// flags.
const (
	StatusNormalExit        uint32 = 0
	StatusSignalled         uint32 = 1
	StatusTimedOut          uint32 = 2
	StatusInternalError     uint32 = 3
)

// AFL's conventional inherited fd numbers for the forkserver control
// channel. forksrv.Client does not use them: its control pipes reach the
// child at fds 3 and 4.
const (
	FDControlRead  = 198
	FDControlWrite = 199
)
