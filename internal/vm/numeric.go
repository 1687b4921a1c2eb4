package vm

import (
	"math"

	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// Ordering mirrors §4.6 "py_cmp returns Option<Ordering>". Unorderable
// operands are reported by pyCmp's ok=false result, not by an Ordering
// value.
type Ordering int

const (
	OrderLess Ordering = -1
	OrderEqual Ordering = 0
	OrderGreater Ordering = 1
)

func numericFloat(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindInt:
		return float64(v.AsInt()), true
	case value.KindFloat:
		return v.AsFloat(), true
	case value.KindBool:
		if v.AsBool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumericImmediate(v value.Value) bool {
	switch v.Kind() {
	case value.KindInt, value.KindFloat, value.KindBool:
		return true
	}
	return false
}

// pyAdd implements §4.6's numeric dispatch policy for `+`: specialized
// fast paths for Int/Float/Bool and mixed Int×Float, promoting Int to
// LongInt on overflow, falling through to user __add__/__radd__ for
// anything else (the fallthrough is handled by the caller, which
// consults AttrCallResult; pyAdd itself returns ok=false to signal that).
func pyAdd[T heap.Tracker](h *heap.Heap[T], a, b value.Value) (value.Value, bool, error) {
	if a.Kind() == value.KindInternString && b.Kind() == value.KindInternString {
		// string concatenation is handled by the caller via the heap
		// Str path (interned strings are immutable); signal fallthrough.
		return value.None, false, nil
	}
	if a.Kind() == value.KindRef || b.Kind() == value.KindRef {
		if v, ok, err := addRefFastPath(h, a, b); ok || err != nil {
			return v, ok, err
		}
		return value.None, false, nil
	}
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false, nil
	}
	if a.Kind() == value.KindFloat || b.Kind() == value.KindFloat {
		fa, _ := numericFloat(a)
		fb, _ := numericFloat(b)
		return value.Float(fa + fb), true, nil
	}
	ia, ib := intOf(a), intOf(b)
	sum := ia + ib
	if (sum > ia) == (ib > 0) { // no overflow
		return value.Int(sum), true, nil
	}
	return value.None, false, nil // overflow: caller promotes via interner.InternLongInt
}

func addRefFastPath[T heap.Tracker](h *heap.Heap[T], a, b value.Value) (value.Value, bool, error) {
	if a.IsRef() && b.IsRef() {
		al, aok := h.Get(a.AsHeapID()).(*heap.List)
		bl, bok := h.Get(b.AsHeapID()).(*heap.List)
		if aok && bok {
			items := make([]value.Value, 0, len(al.Items)+len(bl.Items))
			items = append(items, al.Items...)
			items = append(items, bl.Items...)
			for _, v := range items {
				if v.IsRef() {
					h.IncRef(v.AsHeapID())
				}
			}
			id, err := h.Allocate(&heap.List{Items: items})
			if err != nil {
				return value.None, false, err
			}
			return value.Ref(id), true, nil
		}
	}
	return value.None, false, nil
}

func intOf(v value.Value) int64 {
	if v.Kind() == value.KindBool {
		if v.AsBool() {
			return 1
		}
		return 0
	}
	return v.AsInt()
}

// pySub/pyMul mirror pyAdd's fast-path shape for the remaining arithmetic
// operators that have a pure-immediate fast path; Div/FloorDiv/Mod/Pow
// need zero-division checks so they're kept separate.
func pySub(a, b value.Value) (value.Value, bool) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false
	}
	if a.Kind() == value.KindFloat || b.Kind() == value.KindFloat {
		fa, _ := numericFloat(a)
		fb, _ := numericFloat(b)
		return value.Float(fa - fb), true
	}
	return value.Int(intOf(a) - intOf(b)), true
}

func pyMul(a, b value.Value) (value.Value, bool) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false
	}
	if a.Kind() == value.KindFloat || b.Kind() == value.KindFloat {
		fa, _ := numericFloat(a)
		fb, _ := numericFloat(b)
		return value.Float(fa * fb), true
	}
	return value.Int(intOf(a) * intOf(b)), true
}

func pyDiv(a, b value.Value) (value.Value, bool, *excKind) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false, nil
	}
	fb, _ := numericFloat(b)
	if fb == 0 {
		return value.None, true, &excKind{zeroDivision: true}
	}
	fa, _ := numericFloat(a)
	return value.Float(fa / fb), true, nil
}

func pyFloorDiv(a, b value.Value) (value.Value, bool, *excKind) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false, nil
	}
	if a.Kind() != value.KindFloat && b.Kind() != value.KindFloat {
		ib := intOf(b)
		if ib == 0 {
			return value.None, true, &excKind{zeroDivision: true}
		}
		ia := intOf(a)
		q := ia / ib
		if (ia%ib != 0) && ((ia < 0) != (ib < 0)) {
			q--
		}
		return value.Int(q), true, nil
	}
	fb, _ := numericFloat(b)
	if fb == 0 {
		return value.None, true, &excKind{zeroDivision: true}
	}
	fa, _ := numericFloat(a)
	return value.Float(math.Floor(fa / fb)), true, nil
}

func pyMod(a, b value.Value) (value.Value, bool, *excKind) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false, nil
	}
	if a.Kind() != value.KindFloat && b.Kind() != value.KindFloat {
		ib := intOf(b)
		if ib == 0 {
			return value.None, true, &excKind{zeroDivision: true}
		}
		ia := intOf(a)
		m := ia % ib
		if m != 0 && ((m < 0) != (ib < 0)) {
			m += ib
		}
		return value.Int(m), true, nil
	}
	fb, _ := numericFloat(b)
	if fb == 0 {
		return value.None, true, &excKind{zeroDivision: true}
	}
	fa, _ := numericFloat(a)
	m := math.Mod(fa, fb)
	if m != 0 && ((m < 0) != (fb < 0)) {
		m += fb
	}
	return value.Float(m), true, nil
}

func pyPow(a, b value.Value) (value.Value, bool) {
	if !isNumericImmediate(a) || !isNumericImmediate(b) {
		return value.None, false
	}
	if a.Kind() == value.KindFloat || b.Kind() == value.KindFloat || intOf(b) < 0 {
		fa, _ := numericFloat(a)
		fb, _ := numericFloat(b)
		return value.Float(math.Pow(fa, fb)), true
	}
	return value.Int(ipow(intOf(a), intOf(b))), true
}

func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// excKind is a lightweight internal signal for the handful of error
// conditions numeric ops can raise directly (zero division, negative
// shift) without going through the full builtins-dispatch ceremony.
type excKind struct {
	zeroDivision bool
	valueError   string
	typeError    string
}

// pyBitwise implements §4.6 "py_bitwise" for Int and Bool operands; any
// other operand, LongInt included, raises TypeError; negative shift
// raises ValueError.
func pyBitwise(op OpCode, a, b value.Value) (value.Value, bool, *excKind) {
	aInt := a.Kind() == value.KindInt || a.Kind() == value.KindBool
	bInt := b.Kind() == value.KindInt || b.Kind() == value.KindBool
	if !aInt || !bInt {
		return value.None, true, &excKind{typeError: "unsupported operand type(s) for bitwise operator"}
	}
	ia, ib := intOf(a), intOf(b)
	switch op {
	case OpBinaryLShift:
		if ib < 0 {
			return value.None, true, &excKind{valueError: "negative shift count"}
		}
		return value.Int(ia << uint(ib)), true, nil
	case OpBinaryRShift:
		if ib < 0 {
			return value.None, true, &excKind{valueError: "negative shift count"}
		}
		return value.Int(ia >> uint(ib)), true, nil
	case OpBinaryAnd:
		return value.Int(ia & ib), true, nil
	case OpBinaryOr:
		return value.Int(ia | ib), true, nil
	case OpBinaryXor:
		return value.Int(ia ^ ib), true, nil
	}
	return value.None, false, nil
}

// pyCmp returns (ordering, ok). ok is false for unorderable types (§8.5).
func pyCmp[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, a, b value.Value) (Ordering, bool) {
	if isNumericImmediate(a) && isNumericImmediate(b) {
		fa, _ := numericFloat(a)
		fb, _ := numericFloat(b)
		switch {
		case fa < fb:
			return OrderLess, true
		case fa > fb:
			return OrderGreater, true
		default:
			return OrderEqual, true
		}
	}
	if a.Kind() == value.KindInternString && b.Kind() == value.KindInternString {
		sa, sb := in.GetStr(a.AsStringID()), in.GetStr(b.AsStringID())
		switch {
		case sa < sb:
			return OrderLess, true
		case sa > sb:
			return OrderGreater, true
		default:
			return OrderEqual, true
		}
	}
	return OrderEqual, false
}

// pyEq never raises (§4.6, §8.5): unequal/incomparable types simply
// compare unequal.
func pyEq[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		if isNumericImmediate(a) && isNumericImmediate(b) {
			fa, _ := numericFloat(a)
			fb, _ := numericFloat(b)
			return fa == fb
		}
		return false
	}
	switch a.Kind() {
	case value.KindInternString:
		return in.GetStr(a.AsStringID()) == in.GetStr(b.AsStringID())
	case value.KindRef:
		return eqRef(h, in, a.AsHeapID(), b.AsHeapID())
	default:
		return a.Is(b)
	}
}

func eqRef[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, a, b value.HeapID) bool {
	if a == b {
		return true
	}
	da, db := h.Get(a), h.Get(b)
	switch da := da.(type) {
	case *heap.Str:
		db, ok := db.(*heap.Str)
		return ok && da.S == db.S
	case *heap.List:
		db, ok := db.(*heap.List)
		if !ok || len(da.Items) != len(db.Items) {
			return false
		}
		for i := range da.Items {
			if !pyEq(h, in, da.Items[i], db.Items[i]) {
				return false
			}
		}
		return true
	case *heap.Tuple:
		db, ok := db.(*heap.Tuple)
		if !ok || len(da.Items) != len(db.Items) {
			return false
		}
		for i := range da.Items {
			if !pyEq(h, in, da.Items[i], db.Items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
