package fireflower

import (
	"io"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// depRule is the grammar for a compiler-emitted Make-style dependency
// sidecar: "target: dep dep dep \" with backslash-newline continuations
// and arbitrarily many dependency paths. The teacher repo
// (Byterset-spicy) pulls in alecthomas/participle for its N64 build-spec
// grammar; the Dependency Tracker repurposes the same library for this
// much smaller grammar.
type depRule struct {
	Target string   `@Path ":"`
	Deps   []string `@Path*`
}

var depFileLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Continuation", Pattern: `\\\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Path", Pattern: `[^\s:\\]+`},
})

var depFileParser = participle.MustBuild[depRule](
	participle.Lexer(depFileLexer),
	participle.Elide("Whitespace", "Continuation"),
)

// ParseDepFile parses a Make-style .d sidecar and returns the list of
// dependency paths it names (headers included by the compiled source),
// excluding the rule's own target.
func ParseDepFile(r io.Reader) ([]string, error) {
	rule, err := depFileParser.Parse("", r)
	if err != nil {
		return nil, err
	}
	return rule.Deps, nil
}
