package langgen

import (
	"github.com/alecthomas/participle/v2"

	sldebugerrors "sl-debugger/internal/errors"
)

var slParser = participle.MustBuild[SourceFile](
	participle.Lexer(SLLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// ParseSource parses SL source text into a SourceFile AST, wrapping
// any participle parse failure as an IRGenError so callers never see
// a bare participle.Error.
func ParseSource(filename, source string) (*SourceFile, error) {
	file, err := slParser.ParseString(filename, source)
	if err != nil {
		if pe, ok := err.(participle.Error); ok {
			pos := pe.Position()
			return nil, sldebugerrors.NewIRGenError(
				sldebugerrors.Position{Line: pos.Line, Column: pos.Column},
				"%s", pe.Message())
		}
		return nil, sldebugerrors.NewIRGenError(sldebugerrors.Position{}, "%s", err)
	}
	return file, nil
}
