package strategy

import (
	"time"

	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
)

const followUpDelay = 100 * time.Millisecond

var startChain = Chain{
	Kind: Start,
	Strategies: []Strategy{
		NewDOM("click-run-button", jsClickRunButton),
		NewDOM("code-cell-run", jsCodeCellRun),
		NewDOM("generic-run-button", jsClickFirstMatch(runSelectors)),
	},
}

// The interrupt chain never clicks run controls.
var interruptChain = Chain{
	Kind: Interrupt,
	Strategies: []Strategy{
		NewDOM("click-interrupt-button", jsClickFirstMatch(interruptSelectors)),
		NewKeys("command-mode-interrupt",
			KeyStroke{Key: "m", Code: "KeyM", KeyCode: 77, Modifiers: cdpcontrol.ModCtrl},
		).Then(followUpDelay,
			KeyStroke{Key: "i", Code: "KeyI", KeyCode: 73},
		),
		NewDOM("synthetic-interrupt-keys", jsSyntheticInterruptKeys),
	},
}

// For returns the built-in chain for kind. Unknown kinds get an empty chain,
// which always reports exhaustion.
func For(kind Kind) Chain {
	switch kind {
	case Start:
		return startChain
	case Interrupt:
		return interruptChain
	}
	return Chain{Kind: kind}
}
