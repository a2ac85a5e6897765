package password

import "fmt"

// SecurityLevel selects a named preset of argon2id cost parameters. Higher
// levels trade hashing latency for resistance to offline cracking.
type SecurityLevel int

const (
	// LevelLow is suitable for tests and latency-critical development setups.
	LevelLow SecurityLevel = iota
	// LevelMedium is the default production preset.
	LevelMedium
	// LevelHigh hardens against well-funded offline attacks.
	LevelHigh
	// LevelParanoid maximizes cost; expect several hundred ms per hash.
	LevelParanoid
)

// String implements fmt.Stringer.
func (l SecurityLevel) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelParanoid:
		return "paranoid"
	}
	return fmt.Sprintf("SecurityLevel(%d)", int(l))
}

// Params is the argon2id cost tuple behind a [SecurityLevel].
type Params struct {
	Time        uint32
	MemoryKB    uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

var levelParams = map[SecurityLevel]Params{
	LevelLow:      {Time: 1, MemoryKB: 16 * 1024, Parallelism: 1, KeyLength: 32, SaltLength: 16},
	LevelMedium:   {Time: 2, MemoryKB: 64 * 1024, Parallelism: 2, KeyLength: 32, SaltLength: 16},
	LevelHigh:     {Time: 3, MemoryKB: 128 * 1024, Parallelism: 4, KeyLength: 32, SaltLength: 16},
	LevelParanoid: {Time: 4, MemoryKB: 256 * 1024, Parallelism: 8, KeyLength: 32, SaltLength: 16},
}

// ParamsFor returns the cost tuple for the given level. Unknown levels fall
// back to [LevelMedium].
func ParamsFor(level SecurityLevel) Params {
	if p, ok := levelParams[level]; ok {
		return p
	}
	return levelParams[LevelMedium]
}

// Policy selects the character-diversity profile enforced by
// [ValidateStrength]. The two profiles exist because integrators disagree on
// whether a symbol should be mandatory; the choice is explicit configuration,
// never implied.
type Policy int

const (
	// PolicyStandard requires lowercase, uppercase, and a digit.
	PolicyStandard Policy = iota
	// PolicyStrict additionally requires a symbol.
	PolicyStrict
)
