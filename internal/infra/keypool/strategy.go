package keypool

import (
	"fmt"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
)

// Strategy picks one of the live credentials (in configuration order) and
// returns its index, or -1 when live is empty. Calls are serialized by the pool.
type Strategy interface {
	Pick(live []model.Credential) int
}

// RoundRobin advances its cursor on every call, wrapping modulo the live count.
type RoundRobin struct {
	cursor int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Pick(live []model.Credential) int {
	if len(live) == 0 {
		r.cursor++
		return -1
	}
	i := r.cursor % len(live)
	r.cursor++
	return i
}

// LeastUsed picks the credential with the most quota left; ties go to the
// earliest in configuration order.
type LeastUsed struct{}

func (LeastUsed) Pick(live []model.Credential) int {
	best := -1
	for i, c := range live {
		if best < 0 || c.Remaining() > live[best].Remaining() {
			best = i
		}
	}
	return best
}

// StrategyByName maps the config value to a Strategy.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "round_robin":
		return NewRoundRobin(), nil
	case "least_used":
		return LeastUsed{}, nil
	}
	return nil, fmt.Errorf("%w: unknown pool strategy %q", domain.ErrInvalidArgument, name)
}
