package genotype

import "commcoop/internal/model"

// CloneFSM deep-copies f; the copy shares no backing arrays with f.
func CloneFSM(f *FSM) *FSM {
	if f == nil {
		return nil
	}
	out := &FSM{
		NumTokens: f.NumTokens,
		ActionMap: append([]model.Action(nil), f.ActionMap...),
	}
	out.Transitions = make([][]int, len(f.Transitions))
	for i, row := range f.Transitions {
		out.Transitions[i] = append([]int(nil), row...)
	}
	return out
}

// CloneTapeMachine deep-copies m.
func CloneTapeMachine(m *TapeMachine) *TapeMachine {
	if m == nil {
		return nil
	}
	out := &TapeMachine{
		NumTokens:        m.NumTokens,
		Emit:             append([]model.Token(nil), m.Emit...),
		TerminalRuleRate: m.TerminalRuleRate,
	}
	out.Rules = make([][]Rule, len(m.Rules))
	for i, row := range m.Rules {
		out.Rules[i] = append([]Rule(nil), row...)
	}
	return out
}
