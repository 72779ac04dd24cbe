package actor

// HealthAccessor reads and writes an actor's health as a fraction of its
// maximum. The combat system owns the real health model.
type HealthAccessor interface {
	HealthFraction(a *Actor) float64
	SetHealthFraction(a *Actor, f float64)
}

// AgentLogic lets the AI/ability side take over or release an actor.
type AgentLogic interface {
	StartAgentLogic(a *Actor)
	StopAgentLogic(a *Actor)
}

// NativeHealth maps fractions onto the actor's own health fields.
type NativeHealth struct{}

func (NativeHealth) HealthFraction(a *Actor) float64 {
	return a.Health() / a.MaxHealth()
}

func (NativeHealth) SetHealthFraction(a *Actor, f float64) {
	a.SetHealth(f * a.MaxHealth())
}

// NopLogic is an AgentLogic that does nothing.
type NopLogic struct{}

func (NopLogic) StartAgentLogic(*Actor) {}
func (NopLogic) StopAgentLogic(*Actor)  {}

// LogicChain fans the hooks out to several AgentLogic implementations, in
// order on start and in reverse order on stop.
type LogicChain []AgentLogic

func (c LogicChain) StartAgentLogic(a *Actor) {
	for _, l := range c {
		l.StartAgentLogic(a)
	}
}

func (c LogicChain) StopAgentLogic(a *Actor) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].StopAgentLogic(a)
	}
}
