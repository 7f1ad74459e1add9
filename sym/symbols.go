// Package sym defines canonical symbols for vsbatch operations and system markers.
// These symbols are stable across CLI output and structured logs.
package sym

// Command symbols, one per top-level CLI command.
const (
	AM      = "≡" // am: configuration and system settings
	Dock    = "⌬" // dock: screening batch (ligand docking)
	Rank    = "⋈" // rank: result collection and ranking
	History = "✦" // history: run ledger queries
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // worker pool, launch rate limiting
	PulseOpen  = "✿" // pool start, worker budget resolution
	PulseClose = "❀" // pool drained
	DB         = "⊔" // database/storage layer
	Fault      = "⚠" // failure record and quarantine
)

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM:      "am",
	Dock:    "dock",
	Rank:    "results",
	History: "history",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":      AM,
	"dock":    Dock,
	"results": Rank,
	"history": History,
}
