package pglink

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dbbouncer/pglink/internal/codec"
)

// Query is a constructed statement ready to send over the extended query
// protocol: text with "$1..$N" placeholders plus positional arguments.
type Query struct {
	Text string
	Args []any
}

// NewQuery builds a Query from text and positional arguments, form (a)
// from §4.7.
func NewQuery(text string, args ...any) *Query {
	return &Query{Text: text, Args: args}
}

// QueryConfig is the configuration-record construction form (b) from §4.7:
// named "$name" placeholders resolved case-insensitively against Args.
type QueryConfig struct {
	Text   string
	Args   map[string]any
	Fields []string // optional explicit output field names for ObjectResult
}

var namedPlaceholder = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// NewQueryFromConfig builds a Query by rewriting "$name" occurrences to
// "$k" in first-occurrence order, normalizing Args keys to lowercase and
// rejecting collisions, per §4.7.
func NewQueryFromConfig(cfg QueryConfig) (*Query, error) {
	lower := make(map[string]any, len(cfg.Args))
	for k, v := range cfg.Args {
		lk := strings.ToLower(k)
		if _, exists := lower[lk]; exists {
			return nil, newQueryError(DuplicateArgument, "argument %q collides case-insensitively", k)
		}
		lower[lk] = v
	}

	order := make([]string, 0, len(lower))
	index := make(map[string]int, len(lower))
	text := namedPlaceholder.ReplaceAllStringFunc(cfg.Text, func(m string) string {
		name := strings.ToLower(m[1:])
		i, ok := index[name]
		if !ok {
			i = len(order) + 1
			index[name] = i
			order = append(order, name)
		}
		return "$" + strconv.Itoa(i)
	})

	args := make([]any, len(order))
	for i, name := range order {
		args[i] = lower[name]
	}

	return &Query{Text: text, Args: args}, nil
}

// Builder is the Go-native rendering of template-literal query
// construction (form (c) from §4.7 / Design Note in §9 — "expose a
// builder that accepts a list of text fragments and a list of argument
// values and assembles $1..$N in the source-language-native
// string-interpolation idiom"). Go has no tagged-template syntax, so the
// same fragments-plus-positional-args shape is built through ordinary
// method chaining instead: SQL(fragments...) supplies len(args)+1
// fragments up front, and each Arg call fills the gap between two of them.
type Builder struct {
	fragments []string
	args      []any
}

// SQL starts a Builder with every text fragment supplied up front, in the
// order they will be interleaved with arguments.
func SQL(fragments ...string) *Builder {
	return &Builder{fragments: fragments}
}

// Arg appends the next positional argument, assigned "$1..$N" in call
// order.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	return b
}

// Build assembles the final Query, placing "$1..$N" between fragments in
// call order.
func (b *Builder) Build() *Query {
	var sb strings.Builder
	for i, frag := range b.fragments {
		sb.WriteString(frag)
		if i < len(b.args) {
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i + 1))
		}
	}
	return &Query{Text: sb.String(), Args: b.args}
}

// encodeParams converts Query.Args into internal/pgconn.Param values via
// codec.EncodeArg, applying the per-connection binary-format rule from
// §4.6/§9: all-text unless any argument is raw bytes, in which case only
// that argument is sent in binary format.
func encodeParams(args []any) ([]encodedParam, error) {
	out := make([]encodedParam, len(args))
	for i, a := range args {
		if b, ok := a.([]byte); ok {
			out[i] = encodedParam{binary: true, raw: b}
			continue
		}
		text, nonNull, err := codec.EncodeArg(a)
		if err != nil {
			return nil, err
		}
		out[i] = encodedParam{text: text, isNull: !nonNull}
	}
	return out, nil
}

type encodedParam struct {
	text   string
	isNull bool
	binary bool
	raw    []byte
}
