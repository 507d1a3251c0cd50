package metadata

import "fmt"

// Role is the consensus role of one peer within a tablet quorum.
type Role string

const (
	RoleLeader         Role = "LEADER"
	RoleFollower       Role = "FOLLOWER"
	RoleLearner        Role = "LEARNER"
	RoleNonParticipant Role = "NON_PARTICIPANT"
)

// ParseRole maps |s| to a Role, or errors if it names no known role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleLeader, RoleFollower, RoleLearner, RoleNonParticipant:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown quorum role %q", s)
}

// Peer is one member of a tablet quorum.
type Peer struct {
	UUID    string `json:"uuid" yaml:"uuid"`
	Address string `json:"address" yaml:"address"`
	Role    Role   `json:"role" yaml:"role"`
}

// Quorum is the configured set of peers of a tablet, in a stable order.
type Quorum struct {
	Peers []Peer `json:"peers" yaml:"peers"`
}

// RoleOf returns the role of |uuid| within the quorum,
// or RoleNonParticipant if the quorum doesn't include it.
func (q Quorum) RoleOf(uuid string) Role {
	for _, p := range q.Peers {
		if p.UUID == uuid {
			return p.Role
		}
	}
	return RoleNonParticipant
}

// IsLocal returns whether the quorum consists of exactly one peer, |uuid|.
func (q Quorum) IsLocal(uuid string) bool {
	return len(q.Peers) == 1 && q.Peers[0].UUID == uuid
}

// Copy returns a deep copy of the Quorum.
func (q Quorum) Copy() Quorum {
	return Quorum{Peers: append([]Peer(nil), q.Peers...)}
}
