// Package asmgen turns allocated, framed functions into assembly by
// expanding each instruction's template. This is the final phase of the
// pipeline.
package asmgen

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cg/pkg/asm"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/stacking"
)

// ErrUnselected reports an instruction that reached emission without a
// machine template.
var ErrUnselected = errors.New("instruction has no template")

// Unit is a compiled function with its frame.
type Unit struct {
	Fn     *rtl.Function
	Layout *stacking.FrameLayout
}

// TransformProgram assembles every unit and the program's data symbols.
func TransformProgram(units []Unit, globals []asm.GlobVar) (*asm.Program, error) {
	result := &asm.Program{Globals: append([]asm.GlobVar(nil), globals...)}
	for _, u := range units {
		f, strs, err := TransformFunction(u.Fn, u.Layout)
		if err != nil {
			return nil, err
		}
		result.Functions = append(result.Functions, f)
		result.Globals = append(result.Globals, strs...)
	}
	return result, nil
}

// TransformFunction renders fn. It also returns the read-only symbols of
// the string literals fn references.
func TransformFunction(fn *rtl.Function, layout *stacking.FrameLayout) (asm.Function, []asm.GlobVar, error) {
	r := &asm.Renderer{Function: fn.Name}
	result := asm.Function{Name: fn.Name}
	if layout != nil {
		r.Frame = layout
		result.FrameSize = layout.FrameSize()
		for _, reg := range layout.CalleeSaved {
			result.CalleeSaved = append(result.CalleeSaved, reg.String())
		}
	}

	for _, id := range fn.Code.IDs() {
		in := fn.Code.At(id)
		if in.Label != 0 {
			result.Code = append(result.Code, asm.LabelDef{Name: r.LabelName(in.Label)})
		}
		if in.Template == "" {
			if in.Op.IsPseudo() {
				continue
			}
			return asm.Function{}, nil, fmt.Errorf("%s: %w: %s", fn.Name, ErrUnselected, rtl.FormatInstr(in))
		}
		line, err := r.Render(in)
		if err != nil {
			return asm.Function{}, nil, fmt.Errorf("%s: %w", fn.Name, err)
		}
		result.Code = append(result.Code, asm.Text{Line: line})
	}

	var strs []asm.GlobVar
	for i, s := range fn.Strings {
		data := append([]byte(s), 0)
		strs = append(strs, asm.GlobVar{
			Name:     r.StringName(i),
			Size:     int64(len(data)),
			Align:    1,
			Init:     data,
			ReadOnly: true,
		})
	}
	return result, strs, nil
}
