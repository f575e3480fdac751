package genotype

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"commcoop/internal/model"
)

// Summary counts the terminal entries of an automaton's tables.
type Summary struct {
	TerminalEntries int `json:"terminal_entries"`
	Cooperate       int `json:"cooperate"`
	Defect          int `json:"defect"`
}

type Signature struct {
	Fingerprint string  `json:"fingerprint"`
	Summary     Summary `json:"summary"`
}

// ComputeSignature hashes the table contents and, for tape machines, the
// terminal rule rate. Equal fingerprints mean equal tables; automata that
// behave alike through different tables still differ.
func ComputeSignature(s Strategy) Signature {
	var b strings.Builder
	var summary Summary

	switch v := s.(type) {
	case *FSM:
		b.WriteString("fsm|")
		for _, a := range v.ActionMap {
			fmt.Fprintf(&b, "%d,", int(a))
			countTerminal(&summary, a.Decision())
		}
		b.WriteString("|")
		for _, row := range v.Transitions {
			for _, next := range row {
				fmt.Fprintf(&b, "%d,", next)
			}
			b.WriteString(";")
		}
	case *TapeMachine:
		fmt.Fprintf(&b, "tape|%g|", v.TerminalRuleRate)
		for _, t := range v.Emit {
			fmt.Fprintf(&b, "%d,", int(t))
		}
		b.WriteString("|")
		for _, row := range v.Rules {
			for _, r := range row {
				fmt.Fprintf(&b, "%d:%d:%d,", r.Write, r.Move, r.Next)
				countTerminal(&summary, model.Decision(r.Next))
			}
			b.WriteString(";")
		}
	default:
		fmt.Fprintf(&b, "%s|%d|%d", s.Kind(), s.States(), s.Tokens())
	}

	sum := sha1.Sum([]byte(b.String()))
	return Signature{
		Fingerprint: hex.EncodeToString(sum[:]),
		Summary:     summary,
	}
}

func countTerminal(summary *Summary, d model.Decision) {
	switch d {
	case model.Cooperate:
		summary.Cooperate++
	case model.Defect:
		summary.Defect++
	default:
		return
	}
	summary.TerminalEntries++
}
