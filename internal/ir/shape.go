package ir

import (
	"fmt"
	"strings"
)

// ElementType is the scalar element type of an array shape.
type ElementType uint8

const (
	// F32 is 32-bit IEEE floating point.
	F32 ElementType = iota
	// F16 is 16-bit IEEE floating point.
	F16
	// BF16 is bfloat16, the reduced-precision type convolutions may carry
	// only on devices that support it.
	BF16
	// S32 is 32-bit signed integer.
	S32
	// PRED is a boolean predicate.
	PRED
	// TupleElem marks a tuple shape; Shape.Tuple holds the element shapes.
	TupleElem
)

var elementTypeNames = map[ElementType]string{
	F32:       "f32",
	F16:       "f16",
	BF16:      "bf16",
	S32:       "s32",
	PRED:      "pred",
	TupleElem: "tuple",
}

// String returns the textual-format name of the element type.
func (e ElementType) String() string {
	if name, ok := elementTypeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(e))
}

// ElementTypeFromString parses a textual element type name.
func ElementTypeFromString(s string) (ElementType, bool) {
	for et, name := range elementTypeNames {
		if name == s {
			return et, true
		}
	}
	return 0, false
}

// IsFloat reports whether the element type is a floating point type.
func (e ElementType) IsFloat() bool {
	return e == F32 || e == F16 || e == BF16
}

// IsLowPrecision reports whether the element type is a reduced floating
// point type subject to precision normalization.
func (e ElementType) IsLowPrecision() bool {
	return e == F16 || e == BF16
}

// Shape describes the type of one instruction result: element type,
// dimensions, and an optional physical layout. Tuple shapes nest.
type Shape struct {
	Element ElementType
	Dims    []int64

	// Layout is the minor-to-major dimension order assigned by layout
	// assignment. Nil means no layout has been assigned yet; layout-
	// sensitive passes treat nil as the default (descending) order.
	Layout []int

	// Tuple holds element shapes when Element == TupleElem.
	Tuple []Shape
}

// MakeShape builds an array shape with no layout.
func MakeShape(element ElementType, dims ...int64) Shape {
	return Shape{Element: element, Dims: dims}
}

// MakeTupleShape builds a tuple shape from element shapes.
func MakeTupleShape(elements ...Shape) Shape {
	return Shape{Element: TupleElem, Tuple: elements}
}

// IsTuple reports whether the shape is a tuple.
func (s Shape) IsTuple() bool { return s.Element == TupleElem }

// Rank returns the number of dimensions of an array shape.
func (s Shape) Rank() int { return len(s.Dims) }

// NumElements returns the total element count of an array shape.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// DefaultLayout returns the descending minor-to-major order for the rank,
// e.g. {1,0} for rank 2.
func DefaultLayout(rank int) []int {
	layout := make([]int, rank)
	for i := range layout {
		layout[i] = rank - 1 - i
	}
	return layout
}

// HasDefaultLayout reports whether the shape's layout is unset or equal to
// the default descending order.
func (s Shape) HasDefaultLayout() bool {
	if s.Layout == nil {
		return true
	}
	for i, d := range s.Layout {
		if d != len(s.Layout)-1-i {
			return false
		}
	}
	return true
}

// Equal reports structural equality including layouts.
func (s Shape) Equal(o Shape) bool {
	return s.equal(o, true)
}

// EqualIgnoringLayout reports equality of element types and dimensions only.
func (s Shape) EqualIgnoringLayout(o Shape) bool {
	return s.equal(o, false)
}

func (s Shape) equal(o Shape, withLayout bool) bool {
	if s.Element != o.Element || len(s.Dims) != len(o.Dims) || len(s.Tuple) != len(o.Tuple) {
		return false
	}
	for i := range s.Dims {
		if s.Dims[i] != o.Dims[i] {
			return false
		}
	}
	if withLayout {
		// Nil layout and explicit default layout compare equal.
		if !s.HasDefaultLayout() || !o.HasDefaultLayout() {
			if len(s.Layout) != len(o.Layout) {
				return false
			}
			for i := range s.Layout {
				if s.Layout[i] != o.Layout[i] {
					return false
				}
			}
		}
	}
	for i := range s.Tuple {
		if !s.Tuple[i].equal(o.Tuple[i], withLayout) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	c := Shape{Element: s.Element}
	if s.Dims != nil {
		c.Dims = append([]int64(nil), s.Dims...)
	}
	if s.Layout != nil {
		c.Layout = append([]int(nil), s.Layout...)
	}
	for _, t := range s.Tuple {
		c.Tuple = append(c.Tuple, t.Clone())
	}
	return c
}

// WithElement returns a copy of the shape with a different element type.
func (s Shape) WithElement(element ElementType) Shape {
	c := s.Clone()
	c.Element = element
	return c
}

// String renders the shape in textual format, e.g. "f32[4,8]{1,0}" or
// "(f32[4], s32[])".
func (s Shape) String() string {
	if s.IsTuple() {
		parts := make([]string, len(s.Tuple))
		for i, t := range s.Tuple {
			parts[i] = t.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	var b strings.Builder
	b.WriteString(s.Element.String())
	b.WriteByte('[')
	for i, d := range s.Dims {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	b.WriteByte(']')
	if s.Layout != nil {
		b.WriteByte('{')
		for i, l := range s.Layout {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", l)
		}
		b.WriteByte('}')
	}
	return b.String()
}
