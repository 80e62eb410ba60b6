package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	initErr error
	once    sync.Once
)

// Init initializes the Snowflake node with the given node ID. Only the first
// call, from Init or New, picks the node; later calls return its result.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
// Falls back to node 0 when Init was never called (CLI, tests).
func New() int64 {
	if err := Init(0); err != nil {
		return 0
	}
	return node.Generate().Int64()
}
