// Package coordinator implements the orchestration layer of a lloyd
// cluster. See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/partition"
)

// ErrNoNodes is returned when a distributed job is submitted while no
// healthy node is registered.
var ErrNoNodes = errors.New("no healthy nodes registered")

// RankAssignment binds one rank of a job to the process that runs it.
// Rank 0 is always the coordinator itself.
type RankAssignment struct {
	NodeID string          `json:"node_id"`
	Addr   string          `json:"addr"`
	Rank   int             `json:"rank"`
	Range  partition.Range `json:"range"`
}

// Registry tracks the nodes that have registered with the coordinator,
// in registration order. Registration order decides rank order, so a
// stable set of nodes always produces the same plan.
//
// Thread Safety:
// All methods are safe for concurrent use. Returned slices are copies.
type Registry struct {
	nodes []cluster.NodeInfo
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds node or updates the address of an already known ID. It
// reports whether the node is new.
func (r *Registry) Register(node cluster.NodeInfo) (bool, error) {
	if node.ID == "" || node.Addr == "" {
		return false, errors.New("node ID and address are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(n cluster.NodeInfo) bool { return n.ID == node.ID })
	if idx >= 0 {
		r.nodes[idx] = node
		return false, nil
	}
	r.nodes = append(r.nodes, node)
	return true, nil
}

// Remove forgets nodeID. It reports whether the node was known.
func (r *Registry) Remove(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(n cluster.NodeInfo) bool { return n.ID == nodeID })
	if idx < 0 {
		return false
	}
	r.nodes = slices.Delete(r.nodes, idx, idx+1)
	return true
}

// Get returns the node with the given ID.
func (r *Registry) Get(nodeID string) (cluster.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := slices.IndexFunc(r.nodes, func(n cluster.NodeInfo) bool { return n.ID == nodeID })
	if idx < 0 {
		return cluster.NodeInfo{}, false
	}
	return r.nodes[idx], true
}

// Nodes returns all registered nodes in registration order.
func (r *Registry) Nodes() []cluster.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.nodes)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Plan lays out a job over n points: rank 0 on the coordinator at self,
// then every registered node accepted by eligible, in registration
// order. Each rank is given the contiguous range of points it will
// receive from the scatter.
func (r *Registry) Plan(self string, n int, eligible func(nodeID string) bool) ([]RankAssignment, error) {
	if self == "" {
		return nil, errors.New("coordinator address is required")
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid point count %d", n)
	}

	r.mu.RLock()
	members := make([]cluster.NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		if eligible == nil || eligible(node.ID) {
			members = append(members, node)
		}
	}
	r.mu.RUnlock()

	if len(members) == 0 {
		return nil, ErrNoNodes
	}

	ranges := partition.Split(n, len(members)+1)
	plan := make([]RankAssignment, 0, len(ranges))
	plan = append(plan, RankAssignment{NodeID: "coordinator", Addr: self, Rank: 0, Range: ranges[0]})
	for i, node := range members {
		plan = append(plan, RankAssignment{NodeID: node.ID, Addr: node.Addr, Rank: i + 1, Range: ranges[i+1]})
	}
	return plan, nil
}

// Peers returns the base URL of every rank of plan, indexed by rank.
func Peers(plan []RankAssignment) []string {
	peers := make([]string, len(plan))
	for _, a := range plan {
		peers[a.Rank] = a.Addr
	}
	return peers
}
