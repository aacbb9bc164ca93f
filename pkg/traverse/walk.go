package traverse

import "github.com/jainl28patel/xcc/pkg/cabs"

// WalkStmt visits every expression reachable from stmt, pre-order.
func WalkStmt(stmt cabs.Stmt, visit func(cabs.Expr)) {
	if stmt == nil {
		return
	}
	switch s := stmt.(type) {
	case *cabs.ExprStmt:
		WalkExpr(s.Expr, visit)
	case *cabs.Block:
		for _, item := range s.Items {
			WalkStmt(item, visit)
		}
	case *cabs.If:
		WalkExpr(s.Cond, visit)
		WalkStmt(s.Then, visit)
		WalkStmt(s.Else, visit)
	case *cabs.Switch:
		WalkExpr(s.Cond, visit)
		WalkStmt(s.Body, visit)
	case *cabs.While:
		WalkExpr(s.Cond, visit)
		WalkStmt(s.Body, visit)
	case *cabs.DoWhile:
		WalkStmt(s.Body, visit)
		WalkExpr(s.Cond, visit)
	case *cabs.For:
		WalkExpr(s.Pre, visit)
		WalkExpr(s.Cond, visit)
		WalkExpr(s.Post, visit)
		WalkStmt(s.Body, visit)
	case *cabs.Return:
		WalkExpr(s.Value, visit)
	case *cabs.Label:
		WalkStmt(s.Stmt, visit)
	case *cabs.VarDecl:
		for _, init := range s.Inits {
			WalkStmt(init, visit)
		}
		for _, d := range s.Decls {
			if d.Init != nil {
				walkInit(d.Init, visit)
			}
		}
	}
}

func walkInit(init *cabs.Initializer, visit func(cabs.Expr)) {
	if init == nil {
		return
	}
	WalkExpr(init.Single, visit)
	for _, sub := range init.Multi {
		walkInit(sub, visit)
	}
}

// WalkExpr visits e and every subexpression, pre-order.
func WalkExpr(e cabs.Expr, visit func(cabs.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch x := e.(type) {
	case *cabs.Member:
		WalkExpr(x.Target, visit)
	case *cabs.Deref:
		WalkExpr(x.Sub, visit)
	case *cabs.AddrOf:
		WalkExpr(x.Sub, visit)
	case *cabs.Unary:
		WalkExpr(x.Sub, visit)
	case *cabs.Binary:
		WalkExpr(x.Left, visit)
		WalkExpr(x.Right, visit)
	case *cabs.Assign:
		WalkExpr(x.Left, visit)
		WalkExpr(x.Right, visit)
	case *cabs.CompoundAssign:
		WalkExpr(x.Left, visit)
		WalkExpr(x.Right, visit)
	case *cabs.IncDec:
		WalkExpr(x.Sub, visit)
	case *cabs.Call:
		WalkExpr(x.Fn, visit)
		for _, arg := range x.Args {
			WalkExpr(arg, visit)
		}
	case *cabs.Cast:
		WalkExpr(x.Sub, visit)
	case *cabs.Ternary:
		WalkExpr(x.Cond, visit)
		WalkExpr(x.Then, visit)
		WalkExpr(x.Else, visit)
	case *cabs.Comma:
		WalkExpr(x.Left, visit)
		WalkExpr(x.Right, visit)
	}
}
