package vm

import (
	"context"
	"fmt"
	"math"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

var binaryOps = map[bytecode.Opcode]value.BinaryOp{
	bytecode.OpAdd:    value.OpAdd,
	bytecode.OpSub:    value.OpSub,
	bytecode.OpMul:    value.OpMul,
	bytecode.OpDiv:    value.OpDiv,
	bytecode.OpPow:    value.OpPow,
	bytecode.OpLDiv:   value.OpLDiv,
	bytecode.OpElMul:  value.OpElMul,
	bytecode.OpElDiv:  value.OpElDiv,
	bytecode.OpElPow:  value.OpElPow,
	bytecode.OpElLDiv: value.OpElLDiv,
	bytecode.OpElAnd:  value.OpElAnd,
	bytecode.OpElOr:   value.OpElOr,
	bytecode.OpLe:     value.OpLt,
	bytecode.OpLeEq:   value.OpLe,
	bytecode.OpGr:     value.OpGt,
	bytecode.OpGrEq:   value.OpGe,
	bytecode.OpEq:     value.OpEq,
	bytecode.OpNeq:    value.OpNe,
}

var unaryOps = map[bytecode.Opcode]value.UnaryOp{
	bytecode.OpNot:   value.OpNot,
	bytecode.OpUAdd:  value.OpUPlus,
	bytecode.OpUSub:  value.OpUMinus,
	bytecode.OpTrans: value.OpTranspose,
	bytecode.OpHerm:  value.OpHermitian,
}

// exec runs instructions of f from f.ip until RET or an error. A panicked
// *Error (stack exhaustion) is returned like any other error; every other
// panic is an internal fault and keeps unwinding to Call.
func (v *VM) exec(ctx context.Context, f *frame) (outs []value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()

	u := f.unit
	code := u.Code
	s := v.stack
	for {
		ip := f.ip
		if ip >= len(code) {
			fault("execution ran past the end of %s", u.Name)
		}
		in, next, derr := bytecode.Decode(code, ip)
		if derr != nil {
			panic(&Fault{Unit: u.Name, IP: ip, Op: bytecode.Opcode(code[ip]), Cause: derr})
		}
		if v.opts.Trace {
			log.Debugf("%s %04X %-40s sp=%d", u.Name, ip, in, s.sp-f.opBase)
		}
		if v.opts.Tracer != nil {
			v.opts.Tracer(u, ip, in, len(v.frames))
		}
		v.steps++
		if v.steps%v.opts.PollInterval == 0 {
			if e := v.poll(ctx); e != nil {
				return nil, e
			}
		}
		a := in.Operands

		switch op := in.Op; op {

		// Stack manipulation

		case bytecode.OpPop:
			s.pop()
		case bytecode.OpDup:
			s.push(*s.peek(0))
		case bytecode.OpDupN:
			n := a[0]
			for i := 0; i < n; i++ {
				s.push(*s.peek(n - 1))
			}
		case bytecode.OpRot:
			x, y := s.peek(0), s.peek(1)
			*x, *y = *y, *x
		case bytecode.OpPushNil:
			s.pushValue(nil)
		case bytecode.OpPushTrue:
			s.pushValue(value.Bool(true))
		case bytecode.OpPushFalse:
			s.pushValue(value.Bool(false))
		case bytecode.OpPushPi:
			s.pushValue(value.Scalar(math.Pi))
		case bytecode.OpPushDbl0:
			s.pushValue(value.Scalar(0))
		case bytecode.OpPushDbl1:
			s.pushValue(value.Scalar(1))
		case bytecode.OpPushDbl2:
			s.pushValue(value.Scalar(2))
		case bytecode.OpPopNInts:
			for i := 0; i < a[0]; i++ {
				s.pop().Int()
			}
		case bytecode.OpSetSlotToStackDepth:
			*v.slotCell(f, a[0]) = intCell(s.sp - f.opBase)
		case bytecode.OpExpandCSList:
			if cs, ok := s.peek(0).Value().(*value.CSList); ok {
				s.pop()
				for _, e := range cs.Elems {
					s.pushValue(e)
				}
			}

		// Constants

		case bytecode.OpLoadCst, bytecode.OpLoadCstAlt2, bytecode.OpLoadCstAlt3,
			bytecode.OpLoadCstAlt4, bytecode.OpLoadFarCst:
			s.pushValue(v.constant(f, a[0]))
		case bytecode.OpLoad2Cst:
			s.pushValue(v.constant(f, a[0]))
			s.pushValue(v.constant(f, a[0]+1))
		case bytecode.OpPushFoldedCst:
			if c := v.slotCell(f, a[0]); c.Kind == CellValue && c.v != nil {
				s.pushValue(c.v)
				next = a[1]
			}
		case bytecode.OpSetFoldedCst:
			*v.slotCell(f, a[0]) = valueCell(s.peek(0).Value())

		// Operators

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpPow, bytecode.OpLDiv, bytecode.OpElMul, bytecode.OpElDiv,
			bytecode.OpElPow, bytecode.OpElLDiv, bytecode.OpElAnd, bytecode.OpElOr,
			bytecode.OpLe, bytecode.OpLeEq, bytecode.OpGr, bytecode.OpGrEq,
			bytecode.OpEq, bytecode.OpNeq:
			y := s.popValue()
			x := s.popValue()
			r, err := value.Binary(binaryOps[op], x, y)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpTransMul, bytecode.OpMulTrans, bytecode.OpHermMul,
			bytecode.OpMulHerm, bytecode.OpTransLDiv, bytecode.OpHermLDiv:
			y := s.popValue()
			x := s.popValue()
			r, err := compoundProduct(op, x, y)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpColon2, bytecode.OpColon2Cmd:
			limit := s.popValue()
			base := s.popValue()
			r, err := value.Range(base, value.Scalar(1), limit)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpColon3, bytecode.OpColon3Cmd:
			limit := s.popValue()
			inc := s.popValue()
			base := s.popValue()
			r, err := value.Range(base, inc, limit)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpNot, bytecode.OpUAdd, bytecode.OpUSub, bytecode.OpTrans, bytecode.OpHerm:
			r, err := value.Unary(unaryOps[op], s.popValue())
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpUnaryTrue:
			t, err := truth(s.popValue())
			if err != nil {
				return nil, err
			}
			s.pushValue(value.Bool(t))
		case bytecode.OpIncrPrefix:
			r, err := value.Binary(value.OpAdd, s.popValue(), value.Scalar(1))
			if err != nil {
				return nil, err
			}
			s.pushValue(r)

		// Double fast paths

		case bytecode.OpAddDbl, bytecode.OpSubDbl, bytecode.OpMulDbl, bytecode.OpDivDbl,
			bytecode.OpPowDbl, bytecode.OpLeDbl, bytecode.OpLeEqDbl, bytecode.OpGrDbl,
			bytecode.OpGrEqDbl, bytecode.OpEqDbl, bytecode.OpNeqDbl:
			y := dbl(op, s.popValue())
			x := dbl(op, s.popValue())
			s.pushValue(dblBinary(op, x, y))
		case bytecode.OpUSubDbl:
			s.pushValue(value.Scalar(-dbl(op, s.popValue())))
		case bytecode.OpNotDbl:
			s.pushValue(value.Bool(dbl(op, s.popValue()) == 0))
		case bytecode.OpNotBool:
			s.pushValue(value.Bool(!logical(op, s.popValue())))

		// Slots

		case bytecode.OpPushSlotNargout0, bytecode.OpPushSlotNargout1, bytecode.OpPushSlotDisp:
			nout := 1
			if op != bytecode.OpPushSlotNargout1 {
				nout = 0
			}
			if err := v.pushSlotOrCall(ctx, f, a[0], nout); err != nil {
				return nil, err
			}
		case bytecode.OpPushSlotNargoutN:
			if err := v.pushSlotOrCall(ctx, f, a[0], a[1]); err != nil {
				return nil, err
			}
		case bytecode.OpPushSlotNargout1Special:
			s.pushValue(v.load(f, a[0]))
		case bytecode.OpPushSlotIndexed:
			x := v.load(f, a[0])
			if x == nil {
				name := u.SlotName(a[0])
				if _, ok := v.opts.Resolver.Resolve(name); !ok {
					return nil, newError(ErrIDUndefined, name, nil)
				}
				x = &value.Handle{Name: name}
			}
			s.pushValue(x)
		case bytecode.OpAssign:
			x, err := rhs(s.popValue(), u.SlotName(a[0]))
			if err != nil {
				return nil, err
			}
			v.store(f, a[0], x)
		case bytecode.OpForceAssign:
			v.store(f, a[0], s.popValue())
		case bytecode.OpAssignN:
			if err := v.assignN(f, v.intsConst(f, a[0])); err != nil {
				return nil, err
			}
		case bytecode.OpAssignCompound:
			if a[1] > int(value.OpNe) {
				fault("ASSIGN_COMPOUND: bad operator %d", a[1])
			}
			cur, err := v.mustLoad(f, a[0])
			if err != nil {
				return nil, err
			}
			r, err := value.Binary(value.BinaryOp(a[1]), cur, s.popValue())
			if err != nil {
				return nil, err
			}
			v.store(f, a[0], r)
		case bytecode.OpBindAns:
			x := s.popValue()
			if cs, ok := x.(*value.CSList); ok {
				x = nil
				if len(cs.Elems) > 0 {
					x = cs.Elems[0]
				}
			}
			if x != nil {
				v.store(f, a[0], x)
			}
		case bytecode.OpGlobalInit:
			v.globalInit(f, bytecode.GlobalKind(a[0]), a[1])
		case bytecode.OpDisp:
			x := s.popValue()
			if x != nil {
				fmt.Fprint(v.opts.Output, value.Display(u.SlotName(a[0]), x))
			}

		// Increment and decrement

		case bytecode.OpIncrIDPrefix, bytecode.OpDecrIDPrefix,
			bytecode.OpIncrIDPostfix, bytecode.OpDecrIDPostfix:
			cur, err := v.mustLoad(f, a[0])
			if err != nil {
				return nil, err
			}
			delta := 1.0
			if op == bytecode.OpDecrIDPrefix || op == bytecode.OpDecrIDPostfix {
				delta = -1
			}
			r, err := value.Binary(value.OpAdd, cur, value.Scalar(delta))
			if err != nil {
				return nil, err
			}
			v.store(f, a[0], r)
			if op == bytecode.OpIncrIDPrefix || op == bytecode.OpDecrIDPrefix {
				s.pushValue(r)
			} else {
				s.pushValue(cur)
			}
		case bytecode.OpIncrIDPrefixDbl, bytecode.OpDecrIDPrefixDbl,
			bytecode.OpIncrIDPostfixDbl, bytecode.OpDecrIDPostfixDbl:
			cur := dbl(op, v.load(f, a[0]))
			r := cur + 1
			if op == bytecode.OpDecrIDPrefixDbl || op == bytecode.OpDecrIDPostfixDbl {
				r = cur - 1
			}
			v.store(f, a[0], value.Scalar(r))
			if op == bytecode.OpIncrIDPrefixDbl || op == bytecode.OpDecrIDPrefixDbl {
				s.pushValue(value.Scalar(r))
			} else {
				s.pushValue(value.Scalar(cur))
			}

		// Control flow

		case bytecode.OpJmp:
			next = a[0]
		case bytecode.OpJmpIf, bytecode.OpJmpIfn:
			t, err := truth(s.popValue())
			if err != nil {
				return nil, err
			}
			if t == (op == bytecode.OpJmpIf) {
				next = a[0]
			}
		case bytecode.OpJmpIfBool, bytecode.OpJmpIfnBool:
			if logical(op, s.popValue()) == (op == bytecode.OpJmpIfBool) {
				next = a[0]
			}
		case bytecode.OpJmpIfdef:
			if s.popValue() != nil {
				next = a[0]
			}
		case bytecode.OpJmpIfnCaseMatch:
			label := s.popValue()
			val := s.popValue()
			if !value.CaseMatch(val, label) {
				next = a[0]
			}
		case bytecode.OpJmpUnwind:
			next = v.leave(f, ip, a[0])
		case bytecode.OpBraindeadPrecondition:
			if x := s.peek(0).Value(); value.IsRealScalar(x) {
				next = a[0]
			}
		case bytecode.OpBraindeadWarning:
			line, col, _ := u.Location(ip)
			log.Warningf("%s: %d:%d: | and & in if or while conditions short-circuit", u.Name, line, col)
		case bytecode.OpRet:
			return v.collectOutputs(f)
		case bytecode.OpThrowIfErrObj:
			c := s.pop()
			switch c.Kind {
			case CellError:
				return nil, c.Err()
			case CellJump:
				next = v.leave(f, ip, c.Target())
			default:
				if x := c.Value(); x != nil {
					return nil, &Error{Kind: ErrExecution, Payload: x}
				}
			}
		case bytecode.OpHandleSignals:
			if e := v.poll(ctx); e != nil {
				return nil, e
			}
		case bytecode.OpDebug:
			line, col, _ := u.Location(ip)
			log.Debugf("%s: breakpoint at %d:%d", u.Name, line, col)

		// Loops

		case bytecode.OpForSetup:
			x := s.popValue()
			s.pushValue(x)
			s.push(intCell(value.Columns(x)))
			s.push(intCell(0))
		case bytecode.OpForCond:
			cursor := s.peek(0)
			i, n := cursor.Int(), s.peek(1).Int()
			if i >= n {
				next = v.loopExit(f, ip)
				break
			}
			v.store(f, a[0], value.Column(s.peek(2).Value(), i))
			*cursor = intCell(i + 1)
		case bytecode.OpForComplexSetup:
			x := s.popValue()
			n := 0
			switch t := x.(type) {
			case *value.Struct:
				n = len(t.FieldNames())
			case *value.Cell:
				n = len(t.Elems)
			case *value.CSList:
				n = len(t.Elems)
			case nil:
				return nil, newError(ErrIfUndefined, "", nil)
			default:
				return nil, errorf("in statement 'for [X, Y] = VAL', VAL must be a structure")
			}
			s.pushValue(x)
			s.push(intCell(n))
			s.push(intCell(0))
		case bytecode.OpForComplexCond:
			cursor := s.peek(0)
			i, n := cursor.Int(), s.peek(1).Int()
			if i >= n {
				next = v.loopExit(f, ip)
				break
			}
			var val, key value.Value
			switch t := s.peek(2).Value().(type) {
			case *value.Struct:
				name := t.FieldNames()[i]
				val, _ = t.Field(name)
				key = value.String(name)
			case *value.Cell:
				val, key = t.Elems[i], value.Scalar(float64(i+1))
			case *value.CSList:
				val, key = t.Elems[i], value.Scalar(float64(i+1))
			}
			v.store(f, a[0], val)
			v.store(f, a[1], key)
			*cursor = intCell(i + 1)

		// Indexing and calls

		case bytecode.OpIndexIDNargout0, bytecode.OpIndexIDNargout1, bytecode.OpIndexIDN:
			nout := indexNargout(op, a)
			if err := v.indexID(ctx, f, a[0], value.IndexParen, s.popValues(a[1]), nout); err != nil {
				return nil, err
			}
		case bytecode.OpIndexCellIDNargout0, bytecode.OpIndexCellIDNargout1, bytecode.OpIndexCellIDNargoutN:
			nout := indexNargout(op, a)
			if err := v.indexID(ctx, f, a[0], value.IndexBrace, s.popValues(a[1]), nout); err != nil {
				return nil, err
			}
		case bytecode.OpIndexID1Mat1D:
			if err := v.indexID(ctx, f, a[0], value.IndexParen, s.popValues(1), 1); err != nil {
				return nil, err
			}
		case bytecode.OpIndexID1Mat2D:
			if err := v.indexID(ctx, f, a[0], value.IndexParen, s.popValues(2), 1); err != nil {
				return nil, err
			}
		case bytecode.OpIndexID1MathyUfun:
			arg := s.popValue()
			if x := v.load(f, a[0]); x != nil {
				r, err := value.Index(x, value.IndexParen, []value.Value{arg})
				if err != nil {
					return nil, err
				}
				s.pushValue(r)
				break
			}
			r, err := value.ApplyMath(value.MathFunc(a[1]), arg)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpIndexStructNargoutN:
			r, err := value.Index(s.popValue(), value.IndexField, []value.Value{value.String(v.name(f, a[1]))})
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpIndexStructCall:
			args := s.popValues(a[1])
			base := s.popValue()
			if err := v.indexStructCall(ctx, f, base, v.name(f, a[0]), args, a[2]); err != nil {
				return nil, err
			}
		case bytecode.OpIndexObj:
			nargs := a[1]
			if a[2]&bytecode.IndexObjMarkFlag != 0 {
				nargs = s.sp - f.opBase - v.slotCell(f, a[1]).Int()
			}
			args := s.popValues(nargs)
			base := s.popValue()
			if err := v.indexValue(ctx, f, base, chainKind(a[2]&^bytecode.IndexObjMarkFlag), args, a[0]); err != nil {
				return nil, err
			}
		case bytecode.OpWordCmd:
			args := s.popValues(a[1])
			name := u.SlotName(a[0])
			if v.load(f, a[0]) != nil {
				return nil, errorf("%s used as variable and later as function", name)
			}
			outs, err := v.callName(ctx, f, name, args, a[2])
			if err != nil {
				return nil, err
			}
			pushResults(s, outs, a[2])
		case bytecode.OpEval:
			src, ok := s.popValue().(*value.Str)
			if !ok {
				return nil, errorf("eval: TRY must be a string")
			}
			if v.opts.Fallback == nil {
				return nil, errorf("eval: no evaluator configured")
			}
			outs, err := v.opts.Fallback.Eval(ctx, src.S, a[0])
			if err != nil {
				return nil, err
			}
			pushResults(s, outs, a[0])
		case bytecode.OpEndID:
			x, err := v.mustLoad(f, a[0])
			if err != nil {
				return nil, err
			}
			e, err := value.End(x, a[2], a[1])
			if err != nil {
				return nil, err
			}
			s.pushValue(value.Scalar(e))
		case bytecode.OpEndObj:
			e, err := value.End(s.peek(a[0]).Value(), a[2], a[1])
			if err != nil {
				return nil, err
			}
			s.pushValue(value.Scalar(e))

		// Handles and output control

		case bytecode.OpPushFcnHandle:
			s.pushValue(&value.Handle{Name: v.name(f, a[0])})
		case bytecode.OpPushAnonFcnHandle:
			tmpl, ok := v.constant(f, a[0]).(*bytecode.AnonTemplate)
			if !ok {
				fault("PUSH_ANON_FCN_HANDLE: constant %d is not a function template", a[0])
			}
			h := &value.Handle{Body: tmpl.Unit, Captured: make(map[string]value.Value, len(tmpl.Captures))}
			for _, name := range tmpl.Captures {
				if slot := u.SlotIndex(name); slot >= 0 {
					if x := v.load(f, slot); x != nil {
						h.Captured[name] = x
					}
				}
			}
			s.pushValue(h)
		case bytecode.OpSetIgnoreOutputs:
			v.pendingIgnore = v.intsConst(f, a[0])
		case bytecode.OpClearIgnoreOutputs:
			v.pendingIgnore = nil

		// Sub-assignment

		case bytecode.OpSubassignID, bytecode.OpSubassignCellID:
			x, err := rhs(s.popValue(), u.SlotName(a[0]))
			if err != nil {
				return nil, err
			}
			kind := value.IndexParen
			if op == bytecode.OpSubassignCellID {
				kind = value.IndexBrace
			}
			if err := v.subassign(f, a[0], kind, s.popValues(a[1]), x); err != nil {
				return nil, err
			}
		case bytecode.OpSubassignIDMat1D:
			x, err := rhs(s.popValue(), u.SlotName(a[0]))
			if err != nil {
				return nil, err
			}
			if err := v.subassign(f, a[0], value.IndexParen, s.popValues(1), x); err != nil {
				return nil, err
			}
		case bytecode.OpSubassignStruct:
			x, err := rhs(s.popValue(), u.SlotName(a[0]))
			if err != nil {
				return nil, err
			}
			if err := v.subassign(f, a[0], value.IndexField, []value.Value{value.String(v.name(f, a[1]))}, x); err != nil {
				return nil, err
			}
		case bytecode.OpSubassignObj:
			x, err := rhs(s.popValue(), "")
			if err != nil {
				return nil, err
			}
			args := s.popValues(a[0])
			base := s.popValue()
			r, err := value.Assign(base, chainKind(a[1]), args, x)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpSubassignChained:
			if err := v.subassignChained(f, a[0], v.intsConst(f, a[1])); err != nil {
				return nil, err
			}

		// Aggregates

		case bytecode.OpMatrix, bytecode.OpPushCell:
			rows := splitRows(s.popValues(a[0]*a[1]), a[0], a[1])
			build := value.Concat
			if op == bytecode.OpPushCell {
				build = value.CellLiteral
			}
			r, err := build(rows)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)
		case bytecode.OpMatrixUneven:
			lens := v.intsConst(f, a[0])
			total := 0
			for _, n := range lens {
				total += n
			}
			vals := s.popValues(total)
			rows := make([][]value.Value, len(lens))
			for i, n := range lens {
				rows[i], vals = vals[:n], vals[n:]
			}
			r, err := value.Concat(rows)
			if err != nil {
				return nil, err
			}
			s.pushValue(r)

		default:
			fault("opcode %s not executable", op)
		}

		if next < ip {
			if e := v.poll(ctx); e != nil {
				return nil, e
			}
		}
		f.ip = next
	}
}

// loopExit is the exit target of the loop whose condition is at ip.
func (v *VM) loopExit(f *frame, ip int) int {
	ent, ok := f.unit.InnermostLoop(ip)
	if !ok {
		fault("loop condition at %04X outside any loop region", ip)
	}
	return ent.Target
}

func indexNargout(op bytecode.Opcode, a [bytecode.MaxOperands]int) int {
	switch op {
	case bytecode.OpIndexIDNargout0, bytecode.OpIndexCellIDNargout0:
		return 0
	case bytecode.OpIndexIDN, bytecode.OpIndexCellIDNargoutN:
		return a[2]
	}
	return 1
}

func chainKind(t int) value.IndexKind {
	switch t {
	case bytecode.ChainParen:
		return value.IndexParen
	case bytecode.ChainBrace:
		return value.IndexBrace
	case bytecode.ChainField:
		return value.IndexField
	}
	fault("bad index type %d", t)
	return 0
}

func compoundProduct(op bytecode.Opcode, x, y value.Value) (value.Value, error) {
	var err error
	switch op {
	case bytecode.OpTransMul, bytecode.OpTransLDiv:
		x, err = value.Unary(value.OpTranspose, x)
	case bytecode.OpHermMul, bytecode.OpHermLDiv:
		x, err = value.Unary(value.OpHermitian, x)
	case bytecode.OpMulTrans:
		y, err = value.Unary(value.OpTranspose, y)
	case bytecode.OpMulHerm:
		y, err = value.Unary(value.OpHermitian, y)
	}
	if err != nil {
		return nil, err
	}
	if op == bytecode.OpTransLDiv || op == bytecode.OpHermLDiv {
		return value.Binary(value.OpLDiv, x, y)
	}
	return value.Binary(value.OpMul, x, y)
}

// truth evaluates a condition. An undefined condition is its own error
// kind.
func truth(x value.Value) (bool, error) {
	if x == nil {
		return false, newError(ErrIfUndefined, "", nil)
	}
	return value.IsTrue(x)
}

// dbl asserts the operand of a _DBL instruction.
func dbl(op bytecode.Opcode, x value.Value) float64 {
	d, ok := value.ScalarValue(x)
	if !ok {
		fault("%s: operand %s is not a real scalar", op, value.ClassOf(x))
	}
	return d
}

// logical asserts a known logical scalar.
func logical(op bytecode.Opcode, x value.Value) bool {
	d, ok := value.ScalarValue(x)
	if !ok {
		fault("%s: operand %s is not a logical scalar", op, value.ClassOf(x))
	}
	return d != 0
}

func dblBinary(op bytecode.Opcode, x, y float64) value.Value {
	switch op {
	case bytecode.OpAddDbl:
		return value.Scalar(x + y)
	case bytecode.OpSubDbl:
		return value.Scalar(x - y)
	case bytecode.OpMulDbl:
		return value.Scalar(x * y)
	case bytecode.OpDivDbl:
		return value.Scalar(x / y)
	case bytecode.OpPowDbl:
		return value.Scalar(math.Pow(x, y))
	case bytecode.OpLeDbl:
		return value.Bool(x < y)
	case bytecode.OpLeEqDbl:
		return value.Bool(x <= y)
	case bytecode.OpGrDbl:
		return value.Bool(x > y)
	case bytecode.OpGrEqDbl:
		return value.Bool(x >= y)
	case bytecode.OpEqDbl:
		return value.Bool(x == y)
	}
	return value.Bool(x != y)
}

// rhs checks a value about to be assigned. A cs-list contributes its
// first element.
func rhs(x value.Value, name string) (value.Value, error) {
	if cs, ok := x.(*value.CSList); ok {
		if len(cs.Elems) == 0 {
			return nil, newError(ErrIndex, "", &value.IndexError{Msg: "indexing produces no results"})
		}
		x = cs.Elems[0]
	}
	if x == nil {
		return nil, newError(ErrRHSUndefined, name, nil)
	}
	return x, nil
}

func splitRows(vals []value.Value, rows, cols int) [][]value.Value {
	out := make([][]value.Value, rows)
	for r := range out {
		out[r] = vals[r*cols : (r+1)*cols]
	}
	return out
}

// pushResults pushes call results the way a call site with nargout
// expects them: one value (possibly undefined) for 0 or 1, a cs-list
// otherwise.
func pushResults(s *stack, outs []value.Value, nargout int) {
	if nargout > 1 {
		s.pushValue(value.List(outs...))
		return
	}
	if len(outs) == 0 {
		s.pushValue(nil)
		return
	}
	s.pushValue(outs[0])
}
