package sandbox

type expr interface {
	eval(f *frame) (any, error)
	position() Pos
}

type stmt interface {
	exec(f *frame) error
}

type literal struct {
	pos Pos
	val any
}

type nameExpr struct {
	pos  Pos
	name string
}

type attrExpr struct {
	pos  Pos
	obj  expr
	name string
}

type indexExpr struct {
	pos Pos
	obj expr
	key expr
}

type kwarg struct {
	name string
	val  expr
}

type callExpr struct {
	pos    Pos
	fn     expr
	args   []expr
	kwargs []kwarg
}

type unaryExpr struct {
	pos Pos
	op  string
	x   expr
}

type binaryExpr struct {
	pos Pos
	op  string
	x   expr
	y   expr
}

// logicExpr is "and"/"or"; it yields an operand, not a bool.
type logicExpr struct {
	pos Pos
	op  string
	x   expr
	y   expr
}

// compareExpr keeps a comparison chain: a < b <= c.
type compareExpr struct {
	pos   Pos
	first expr
	ops   []string
	rest  []expr
}

type condExpr struct {
	pos  Pos
	cond expr
	then expr
	els  expr
}

type listExpr struct {
	pos   Pos
	elems []expr
}

func (e *literal) position() Pos     { return e.pos }
func (e *nameExpr) position() Pos    { return e.pos }
func (e *attrExpr) position() Pos    { return e.pos }
func (e *indexExpr) position() Pos   { return e.pos }
func (e *callExpr) position() Pos    { return e.pos }
func (e *unaryExpr) position() Pos   { return e.pos }
func (e *binaryExpr) position() Pos  { return e.pos }
func (e *logicExpr) position() Pos   { return e.pos }
func (e *compareExpr) position() Pos { return e.pos }
func (e *condExpr) position() Pos    { return e.pos }
func (e *listExpr) position() Pos    { return e.pos }

type exprStmt struct {
	x expr
}

// assignStmt binds a local name; op is "" for plain assignment or the
// arithmetic operator of an augmented assignment.
type assignStmt struct {
	pos   Pos
	name  string
	op    string
	value expr
}

type ifStmt struct {
	conds  []expr
	bodies [][]stmt
	els    []stmt
}

type forStmt struct {
	pos  Pos
	name string
	iter expr
	body []stmt
}

type passStmt struct{}

type breakStmt struct{}

type continueStmt struct{}
