package replication

import (
	"strconv"
	"sync/atomic"
)

// ReplicaID identifies a Replica in its Authority's registry. IDs are never
// reused within a process.
type ReplicaID uint64

var lastReplicaID atomic.Uint64

func newReplicaID() ReplicaID {
	return ReplicaID(lastReplicaID.Add(1))
}

func (id ReplicaID) String() string {
	return "replica-" + strconv.FormatUint(uint64(id), 10)
}
