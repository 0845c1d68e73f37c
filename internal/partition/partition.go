// Package partition assigns event types to cluster members.
//
// The assignment is a static modulo over the byte sum of the event type code.
// Changing the cluster size moves most event types and needs every member
// redeployed together; there is no rebalancing.
package partition

import "fmt"

// Filter decides which event types this member consumes.
type Filter struct {
	size  int
	index int
}

func NewFilter(clusterSize, clusterIndex int) (*Filter, error) {
	if clusterSize < 1 {
		return nil, fmt.Errorf("cluster size must be >= 1, got %d", clusterSize)
	}
	if clusterIndex < 0 || clusterIndex >= clusterSize {
		return nil, fmt.Errorf("cluster index %d out of range [0, %d)", clusterIndex, clusterSize)
	}
	return &Filter{size: clusterSize, index: clusterIndex}, nil
}

// Owns reports whether eventTypeCode belongs to this member.
func (f *Filter) Owns(eventTypeCode string) bool {
	return Owner(eventTypeCode, f.size) == f.index
}

func (f *Filter) Size() int  { return f.size }
func (f *Filter) Index() int { return f.index }

// Owner returns the cluster index owning eventTypeCode.
func Owner(eventTypeCode string, clusterSize int) int {
	var sum uint64
	for i := 0; i < len(eventTypeCode); i++ {
		sum += uint64(eventTypeCode[i])
	}
	return int(sum % uint64(clusterSize))
}
