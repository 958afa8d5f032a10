// Package analyzer checks workflow functions for code that breaks deterministic replay.
package analyzer

import (
	"flag"
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const workflowPackage = "github.com/notifyhub/prepflow/workflow"

// Replacements for standard library calls that read the wall clock or wait on it.
var timeReplacements = map[string]string{
	"Now":      "workflow.Now",
	"Since":    "workflow.Now",
	"Until":    "workflow.Now",
	"Sleep":    "workflow.Sleep",
	"After":    "workflow.ScheduleTimer",
	"Tick":     "workflow.ScheduleTimer",
	"NewTimer": "workflow.ScheduleTimer",
}

// New returns an analyzer with its own flag set.
func New() *analysis.Analyzer {
	var checkPrivateReturnValues bool

	a := &analysis.Analyzer{
		Name: "prepflowvet",
		Doc:  "Checks workflow functions for non-deterministic code",
		Run: func(pass *analysis.Pass) (any, error) {
			return run(pass, checkPrivateReturnValues)
		},
		Requires: []*analysis.Analyzer{inspect.Analyzer},
		Flags:    *flag.NewFlagSet("prepflowvet", flag.ExitOnError),
	}

	a.Flags.BoolVar(&checkPrivateReturnValues, "checkprivatereturnvalues", false, "check return values of unexported workflows")

	return a
}

var Analyzer = New()

func run(pass *analysis.Pass, checkPrivateReturnValues bool) (any, error) {
	inspector := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{(*ast.FuncDecl)(nil)}

	inspector.Preorder(nodeFilter, func(node ast.Node) {
		funcDecl := node.(*ast.FuncDecl)

		if !isWorkflow(pass, funcDecl) {
			return
		}

		if funcDecl.Name.IsExported() || checkPrivateReturnValues {
			checkResults(pass, funcDecl)
		}

		if funcDecl.Body != nil {
			checkBody(pass, funcDecl.Body)
		}
	})

	return nil, nil
}

func checkResults(pass *analysis.Pass, funcDecl *ast.FuncDecl) {
	results := funcDecl.Type.Results
	if results == nil || results.NumFields() == 0 {
		pass.Reportf(funcDecl.Pos(), "workflow %q doesn't return anything. needs to return at least `error`", funcDecl.Name.Name)
		return
	}

	if results.NumFields() > 2 {
		pass.Reportf(funcDecl.Pos(), "workflow %q returns more than two values", funcDecl.Name.Name)
		return
	}

	last := results.List[len(results.List)-1]
	if t := pass.TypesInfo.TypeOf(last.Type); t == nil || !types.Identical(t, types.Universe.Lookup("error").Type()) {
		pass.Reportf(funcDecl.Pos(), "workflow %q doesn't return `error` as last return value", funcDecl.Name.Name)
	}
}

func checkBody(pass *analysis.Pass, body *ast.BlockStmt) {
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.RangeStmt:
			if t := pass.TypesInfo.TypeOf(n.X); t != nil {
				if _, ok := t.Underlying().(*types.Map); ok {
					pass.Reportf(n.Pos(), "iterating over a map is not deterministic and not allowed in workflows")
				}
			}

		case *ast.GoStmt:
			pass.Reportf(n.Pos(), "use workflow.ForkJoin instead of `go` in workflows")

		case *ast.SelectStmt:
			pass.Reportf(n.Pos(), "select is not allowed in workflows, wait on futures instead")

		case *ast.CallExpr:
			fn, ok := typeutil.Callee(pass.TypesInfo, n).(*types.Func)
			if !ok || fn.Pkg() == nil {
				return true
			}

			switch fn.Pkg().Path() {
			case "time":
				if r, ok := timeReplacements[fn.Name()]; ok && isPackageFunc(fn) {
					pass.Reportf(n.Pos(), "use %s instead of time.%s in workflows", r, fn.Name())
				}

			case "math/rand", "math/rand/v2", "crypto/rand":
				pass.Reportf(n.Pos(), "%s.%s is not deterministic, generate random values in an activity", fn.Pkg().Name(), fn.Name())
			}
		}

		return true
	})
}

func isPackageFunc(fn *types.Func) bool {
	sig, ok := fn.Type().(*types.Signature)
	return ok && sig.Recv() == nil
}

// isWorkflow reports whether the first parameter of the function is a workflow.Context.
func isWorkflow(pass *analysis.Pass, funcDecl *ast.FuncDecl) bool {
	params := funcDecl.Type.Params.List
	if len(params) < 1 {
		return false
	}

	sel, ok := params[0].Type.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Context" {
		return false
	}

	x, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}

	pkgName, ok := pass.TypesInfo.Uses[x].(*types.PkgName)
	if !ok {
		return false
	}

	return pkgName.Imported().Path() == workflowPackage
}
