package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	bw "github.com/bwmarrin/snowflake"
)

const (
	nodeBits = 10
	stepBits = 12

	// TimeShift is the number of low bits below the timestamp field.
	TimeShift = nodeBits + stepBits

	// MaxNode is the largest node number a generator accepts.
	MaxNode = 1<<nodeBits - 1
)

// ErrInvalidNode is returned by [New] for node numbers outside [0, MaxNode].
var ErrInvalidNode = errors.New("snowflake node out of range")

// ID is a generated identifier.
type ID int64

// String returns the decimal form used in storage keys and APIs.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 returns the raw value.
func (id ID) Int64() int64 {
	return int64(id)
}

// Parse decodes the decimal form produced by [ID.String].
func Parse(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake id: %w", err)
	}
	if v < 0 {
		return 0, errors.New("parse snowflake id: negative value")
	}
	return ID(v), nil
}

// Generator hands out IDs for one node. It is safe for concurrent use.
//
// Ordering relies on the monotonic clock reading captured at construction,
// so wall-clock steps backwards never yield a duplicate; within one
// millisecond the sequence is exhausted before the generator waits for the
// next tick.
type Generator struct {
	node    *bw.Node
	nodeID  int64
	epochMS int64
}

// New creates a generator for the given node number using the standard
// epoch (2010-11-04T01:42:54.657Z).
func New(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, node)
	}
	n, err := bw.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Generator{
		node:    n,
		nodeID:  node,
		epochMS: bw.Epoch,
	}, nil
}

// Generate returns the next ID.
func (g *Generator) Generate() ID {
	return ID(g.node.Generate().Int64())
}

// Node returns the node number baked into every ID of this generator.
func (g *Generator) Node() int64 {
	return g.nodeID
}

// Epoch returns the instant that timestamp zero corresponds to.
func (g *Generator) Epoch() time.Time {
	return time.UnixMilli(g.epochMS)
}

// ExtractCreationTime recovers the millisecond at which id was issued.
func (g *Generator) ExtractCreationTime(id ID) time.Time {
	return time.UnixMilli((int64(id) >> TimeShift) + g.epochMS)
}

// ExtractCreationTimeString is [Generator.ExtractCreationTime] for the
// decimal form. Malformed input yields the zero time.
func (g *Generator) ExtractCreationTimeString(id string) time.Time {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}
	}
	return g.ExtractCreationTime(parsed)
}
