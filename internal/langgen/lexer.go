// Package langgen implements the SL front end: a participle-based
// lexer and grammar, a parser wrapper, and an AST→IR lowering pass
// that emits both an ir.Program and its accompanying debuginfo.Info.
package langgen

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SLLexer tokenizes SL source. SL's surface syntax is a small
// whitespace-insensitive imperative language: declarations
// (`int`/`bool`), assignment, `if`/`while`, `observe(...)`, a
// `discrete({...})` literal, and bare `{ ... }` blocks for shadowing.
var SLLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Float", `[0-9]+\.[0-9]+`, nil},
		{"Integer", `[0-9]+`, nil},
		{"Operator", `(==|!=|<=|>=|[-+*/<>=])`, nil},
		{"Punctuation", `[{}()\[\]:;,]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
