// ABOUTME: Reliable-stream wire protocol — listener commands and server replies
// ABOUTME: All integers are little-endian 32-bit per §4.2/§6
package controlplane

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Cmd is a listener-initiated command or server reply tag.
type Cmd uint32

const (
	CmdNone      Cmd = 0
	CmdGetFormat Cmd = 1
	CmdStartPlay Cmd = 2
	CmdHeartbeat Cmd = 3
)

// MaxFormatSize is §7's ConfigInvalid/PeerProtocolError bound: a format
// reply body over 1024 bytes is a protocol error.
const MaxFormatSize = 1024

// readCmd reads one little-endian u32 command from r.
func readCmd(r io.Reader) (Cmd, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CmdNone, err
	}
	return Cmd(binary.LittleEndian.Uint32(buf[:])), nil
}

// encodeFormatReply builds `cmd=1, u32(size), bytes(size)`.
func encodeFormatReply(body []byte) ([]byte, error) {
	if len(body) > MaxFormatSize {
		return nil, fmt.Errorf("controlplane: format body %d bytes exceeds max %d", len(body), MaxFormatSize)
	}
	frame := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(CmdGetFormat))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(body)))
	copy(frame[8:], body)
	return frame, nil
}

// encodeStartReply builds `cmd=2, u32(peer_id)`.
func encodeStartReply(id uint32) []byte {
	frame := make([]byte, 8)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(CmdStartPlay))
	binary.LittleEndian.PutUint32(frame[4:8], id)
	return frame
}

// encodeHeartbeat builds `cmd=3`.
func encodeHeartbeat() []byte {
	frame := make([]byte, 4)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(CmdHeartbeat))
	return frame
}

// decodeUDPRegistration reads the UDP datagram payload `u32(peer_id)`.
func decodeUDPRegistration(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload[:4]), true
}
