package component

// TickTier is the update-frequency hint handed to a promoted actor. The actor
// side owns the actual throttling; the scheduler only picks the band.
type TickTier uint8

const (
	TierNear TickTier = iota // full rate
	TierMid                  // reduced rate
	TierFar                  // minimal rate
)

func (t TickTier) String() string {
	switch t {
	case TierNear:
		return "near"
	case TierMid:
		return "mid"
	case TierFar:
		return "far"
	}
	return "unknown"
}

// ActorHandle is a weak reference to a pooled actor: a 32-bit slot index in
// the lower bits and the slot generation in the upper bits. The pool bumps
// the generation whenever a slot is released or its actor is lost, so an old
// handle can never reach the next occupant.
type ActorHandle uint64

func NewActorHandle(slot uint32, generation uint32) ActorHandle {
	return ActorHandle(uint64(generation)<<32 | uint64(slot))
}

func (h ActorHandle) Slot() uint32       { return uint32(h) }
func (h ActorHandle) Generation() uint32 { return uint32(h >> 32) }
func (h ActorHandle) IsZero() bool       { return h == 0 }

// SpawnState is the promotion bookkeeping kept on every entity.
type SpawnState struct {
	Promoted           bool
	Actor              ActorHandle // zero while un-promoted
	LastHealthFraction float64     // restored on the next promotion
	LastTransform      Transform   // transform captured at the last demotion
	Cooldown           int         // ticks before promotion is considered again
}

// AgentConfig is the per-class tuning copied onto each entity at spawn.
type AgentConfig struct {
	ClassID           int32
	PromotionDistance float64
	DemotionDistance  float64
	TickTier          TickTier
	MoveSpeed         float64 // units per second; 0 uses the movement default
	NearBand          float64 // distance up to which TierNear applies
	MidBand           float64 // distance up to which TierMid applies
}
