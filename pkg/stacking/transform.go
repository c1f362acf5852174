package stacking

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// Transform lays out the frame of an allocated function, inserts the
// prologue at its entry and the epilogue before each return.
func Transform(fn *rtl.Function, log *zap.Logger) *FrameLayout {
	if log == nil {
		log = zap.NewNop()
	}
	layout := ComputeLayout(fn)
	code := fn.Code

	first := code.First()
	for _, in := range GeneratePrologue(layout) {
		code.InsertBefore(first, in)
	}

	returns := 0
	for id := first; id != rtl.NoID; id = code.Next(id) {
		if code.At(id).Op != rtl.XRet {
			continue
		}
		epilogue := GenerateEpilogue(layout)
		if label := code.At(id).Label; label != 0 {
			epilogue[0].Label = label
			code.At(id).Label = 0
		}
		for _, in := range epilogue {
			code.InsertBefore(id, in)
		}
		returns++
	}

	log.Debug("frame",
		zap.String("function", fn.Name),
		zap.Int64("size", layout.FrameSize()),
		zap.Int64("padding", layout.Padding),
		zap.Int("callee_saved", len(layout.CalleeSaved)),
		zap.Int("returns", returns))
	return layout
}
