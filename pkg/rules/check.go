package rules

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/raymyers/ralph-cg/pkg/rtl"
)

type ruleKey struct {
	op              rtl.Op
	dst, src1, src2 NT
}

// Check validates the table: no two rules share an operation and classes,
// no arithmetic rule narrows a source, only leaf rules may be free, and the
// table fits MaxRules. Every problem found is reported.
func (s *Set) Check() error {
	var err error
	if len(s.rules) > MaxRules {
		err = multierr.Append(err, fmt.Errorf("rule table has %d rules, limit is %d", len(s.rules), MaxRules))
	}
	seen := make(map[ruleKey]int)
	for _, r := range s.rules {
		k := ruleKey{r.Op, r.Dst, r.Src1, r.Src2}
		if prev, ok := seen[k]; ok {
			err = multierr.Append(err, fmt.Errorf("rule %d duplicates rule %d: %s", r.Index, prev, r))
		} else {
			seen[k] = r.Index
		}
		if r.Cost == 0 && !r.IsLeaf() {
			err = multierr.Append(err, fmt.Errorf("rule %d has an operation but no cost: %s", r.Index, r))
		}
		if narrows(r) {
			err = multierr.Append(err, fmt.Errorf("rule %d loses precision: %s", r.Index, r))
		}
	}
	return err
}

// narrows reports whether an arithmetic rule produces a narrower integer
// result than one of its register or memory sources. Moves and comparisons
// may narrow.
func narrows(r *Rule) bool {
	switch r.Op {
	case rtl.OpAdd, rtl.OpSub, rtl.OpMul, rtl.OpDiv, rtl.OpMod,
		rtl.OpBor, rtl.OpBand, rtl.OpXor, rtl.OpBnot:
	default:
		return false
	}
	if !r.Dst.IsRegister() {
		return false
	}
	for _, src := range []NT{r.Src1, r.Src2} {
		if (src.IsRegister() || src.IsMemory()) && src.Size() > r.Dst.Size() {
			return true
		}
	}
	return false
}

// Fprint writes the rule listing.
func (s *Set) Fprint(w io.Writer) {
	fmt.Fprintf(w, "%4s %-5s %-17s %-5s %-5s %3s\n", "#", "dst", "op", "src1", "src2", "cst")
	for _, r := range s.rules {
		fmt.Fprintln(w, r.String())
	}
}
