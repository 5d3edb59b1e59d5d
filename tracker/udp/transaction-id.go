package udp

import (
	cryptoRand "crypto/rand"
	"math/rand/v2"
	"sync"
)

// Produces transaction IDs for matching replies to requests. Uniqueness across in-flight requests
// comes from them being on different sockets or to different trackers, not from the source.
type TransactionIdSource interface {
	NextId() TransactionId
}

// Draws transaction IDs from a random source. Tests can pass a seeded source for repeatable
// sequences.
type TransactionIds struct {
	mu  sync.Mutex
	src rand.Source
}

func NewTransactionIds(src rand.Source) *TransactionIds {
	return &TransactionIds{src: src}
}

func (me *TransactionIds) NextId() TransactionId {
	me.mu.Lock()
	defer me.mu.Unlock()
	return TransactionId(me.src.Uint64() >> 32)
}

// Used by Clients that don't set Ids.
var DefaultTransactionIds TransactionIdSource = newSeededTransactionIds()

func newSeededTransactionIds() *TransactionIds {
	var seed [32]byte
	_, err := cryptoRand.Read(seed[:])
	if err != nil {
		panic(err)
	}
	return NewTransactionIds(rand.NewChaCha8(seed))
}
