package udp

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/anacrolix/missinggo/v2/panicif"
)

type Action int32

// BEP 15
const (
	ActionConnect Action = iota
	ActionAnnounce
	ActionScrape
	ActionError
)

func (me Action) String() string {
	switch me {
	case ActionConnect:
		return "connect"
	case ActionAnnounce:
		return "announce"
	case ActionScrape:
		return "scrape"
	case ActionError:
		return "error"
	}
	return "unknown"
}

const ConnectRequestConnectionId ConnectionId = 0x41727101980

type (
	ConnectionId  = uint64
	TransactionId = uint32
	InfoHash      = [20]byte
)

type ConnectionResponse struct {
	ConnectionId ConnectionId
}

type ResponseHeader struct {
	Action        Action
	TransactionId TransactionId
}

type RequestHeader struct {
	ConnectionId  ConnectionId
	Action        Action
	TransactionId TransactionId
} // 16 bytes

type AnnounceResponseHeader struct {
	Interval int32
	Leechers int32
	Seeders  int32
} // 12 bytes

func Read(r io.Reader, data interface{}) error {
	return binary.Read(r, binary.BigEndian, data)
}

func Write(w io.Writer, data interface{}) error {
	return binary.Write(w, binary.BigEndian, data)
}

// Marshals values of fixed size. This panics on types binary.Write can't handle, which are
// programming errors.
func mustMarshal(data ...interface{}) []byte {
	var buf bytes.Buffer
	for _, d := range data {
		panicif.Err(Write(&buf, d))
	}
	return buf.Bytes()
}
