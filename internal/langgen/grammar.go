package langgen

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SourceFile is the grammar's top-level production: a flat sequence
// of statements, with no module or function wrapper — SL's surface
// syntax is a single top-level statement list.
type SourceFile struct {
	Pos        lexer.Position
	Statements []*Statement `@@*`
}

type Statement struct {
	Pos     lexer.Position
	Decl    *VarDecl     `  @@`
	If      *IfStmt      `| @@`
	While   *WhileStmt   `| @@`
	Observe *ObserveStmt `| @@`
	Block   *BlockStmt   `| @@`
	Assign  *AssignStmt  `| @@`
}

type VarDecl struct {
	Pos   lexer.Position
	Type  string `@("int" | "bool")`
	Name  string `@Ident "="`
	Value *Expr  `@@`
}

type AssignStmt struct {
	Pos   lexer.Position
	Name  string `@Ident "="`
	Value *Expr  `@@`
}

type IfStmt struct {
	Pos  lexer.Position
	Cond *Expr      `"if" @@`
	Then *BlockStmt `@@`
	Else *BlockStmt `[ "else" @@ ]`
}

type WhileStmt struct {
	Pos  lexer.Position
	Cond *Expr      `"while" @@`
	Body *BlockStmt `@@`
}

// ObserveStmt accepts both "observe(E)" and "observe E": the optional
// groups around the expression make the parens themselves optional
// rather than forking the grammar into two statement shapes.
type ObserveStmt struct {
	Pos lexer.Position
	Arg *Expr `"observe" [ "(" ] @@ [ ")" ]`
}

type BlockStmt struct {
	Pos        lexer.Position
	Statements []*Statement `"{" @@* "}"`
}

// Expr is a single comparison level over two additive expressions;
// SL's sample programs never nest boolean combinators, so there is no
// general precedence climb here.
type Expr struct {
	Pos     lexer.Position
	Left    *AddExpr     `@@`
	Compare *CompareTail `@@?`
}

type CompareTail struct {
	Pos      lexer.Position
	Operator string   `@("==" | "!=" | "<" | "<=" | ">" | ">=")`
	Right    *AddExpr `@@`
}

type AddExpr struct {
	Pos  lexer.Position
	Left *Primary `@@`
	Ops  []*AddOp `{ @@ }`
}

type AddOp struct {
	Pos      lexer.Position
	Operator string   `@("+" | "-")`
	Right    *Primary `@@`
}

type Primary struct {
	Pos      lexer.Position
	Discrete *DiscreteExpr `  @@`
	Number   *int64        `| @Integer`
	Bool     *string       `| @("true" | "false")`
	Ident    *string       `| @Ident`
	Paren    *Expr         `| "(" @@ ")"`
}

// DiscreteExpr is SL's discrete-distribution literal:
// discrete({1: 0.5, 2: 0.5}).
type DiscreteExpr struct {
	Pos     lexer.Position
	Entries []*DiscreteEntry `"discrete" "(" "{" @@ { "," @@ } "}" ")"`
}

type DiscreteEntry struct {
	Pos  lexer.Position
	Key  int64   `@Integer ":"`
	Prob float64 `@Float`
}
