package revset

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// Evaluator evaluates revset templates against a store. It only reads;
// it takes no locks of its own.
type Evaluator struct {
	store *store.Store
}

// NewEvaluator creates an Evaluator over the given store.
func NewEvaluator(s *store.Store) *Evaluator {
	return &Evaluator{store: s}
}

// Evaluate parses and evaluates a revset template. Placeholders
// consume args left to right: %s takes a changeset.ID, %d an int,
// %ls a *Set.
func (e *Evaluator) Evaluate(ctx context.Context, template string, args ...any) (*Set, error) {
	toks, err := lex(template)
	if err != nil {
		return nil, fmt.Errorf("revset %q: %w", template, err)
	}
	p := &parser{ctx: ctx, eval: e, toks: toks, args: args}
	result, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("revset %q: %w", template, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("revset %q: trailing input at token %d", template, p.pos)
	}
	if p.argPos != len(p.args) {
		return nil, fmt.Errorf("revset %q: %d unused arguments", template, len(p.args)-p.argPos)
	}
	return result, nil
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokLParen
	tokRParen
	tokComma
	tokMinus
	tokPlaceholder // %s, %d or %ls
)

type token struct {
	kind tokKind
	text string
}

func lex(template string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(template) {
		c := template[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-"})
			i++
		case c == '%':
			rest := template[i:]
			switch {
			case strings.HasPrefix(rest, "%ls"):
				toks = append(toks, token{tokPlaceholder, "%ls"})
				i += 3
			case strings.HasPrefix(rest, "%s"):
				toks = append(toks, token{tokPlaceholder, "%s"})
				i += 2
			case strings.HasPrefix(rest, "%d"):
				toks = append(toks, token{tokPlaceholder, "%d"})
				i += 2
			default:
				return nil, fmt.Errorf("unknown placeholder at offset %d", i)
			}
		case unicode.IsLetter(rune(c)):
			j := i
			for j < len(template) && unicode.IsLetter(rune(template[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, template[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return toks, nil
}

type parser struct {
	ctx    context.Context
	eval   *Evaluator
	toks   []token
	pos    int
	args   []any
	argPos int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	return t, nil
}

func (p *parser) takeArg() (any, error) {
	if p.argPos >= len(p.args) {
		return nil, fmt.Errorf("not enough arguments")
	}
	arg := p.args[p.argPos]
	p.argPos++
	return arg, nil
}

// parseExpr := term ('-' term)*
func (p *parser) parseExpr() (*Set, error) {
	result, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokMinus {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		result = result.Difference(rhs)
	}
}

// parseTerm := func '(' args ')' | %ls
func (p *parser) parseTerm() (*Set, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	if t.kind == tokPlaceholder {
		if t.text != "%ls" {
			return nil, fmt.Errorf("placeholder %s is not a set", t.text)
		}
		arg, err := p.takeArg()
		if err != nil {
			return nil, err
		}
		set, ok := arg.(*Set)
		if !ok {
			return nil, fmt.Errorf("%%ls wants *Set, got %T", arg)
		}
		return set, nil
	}

	if t.kind != tokIdent {
		return nil, fmt.Errorf("expected function name, got %q", t.text)
	}
	name := t.text

	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	callArgs, err := p.parseCallArgs()
	if err != nil {
		return nil, err
	}

	return p.eval.call(p.ctx, name, callArgs)
}

// parseCallArgs consumes placeholder arguments up to the closing paren.
func (p *parser) parseCallArgs() ([]any, error) {
	var out []any
	for {
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		switch t.kind {
		case tokRParen:
			return out, nil
		case tokComma:
			// separator
		case tokPlaceholder:
			arg, err := p.takeArg()
			if err != nil {
				return nil, err
			}
			switch t.text {
			case "%s":
				id, ok := arg.(changeset.ID)
				if !ok {
					return nil, fmt.Errorf("%%s wants changeset.ID, got %T", arg)
				}
				out = append(out, id)
			case "%d":
				n, ok := arg.(int)
				if !ok {
					return nil, fmt.Errorf("%%d wants int, got %T", arg)
				}
				out = append(out, n)
			case "%ls":
				set, ok := arg.(*Set)
				if !ok {
					return nil, fmt.Errorf("%%ls wants *Set, got %T", arg)
				}
				out = append(out, set)
			}
		default:
			return nil, fmt.Errorf("unexpected token %q in argument list", t.text)
		}
	}
}

func (p *parser) expect(kind tokKind) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if t.kind != kind {
		return fmt.Errorf("unexpected token %q", t.text)
	}
	return nil
}

// call dispatches a revset function.
func (e *Evaluator) call(ctx context.Context, name string, args []any) (*Set, error) {
	switch name {
	case "predecessors":
		id, depth, err := idAndDepth(name, args)
		if err != nil {
			return nil, err
		}
		return e.predecessors(ctx, id, depth)
	case "successors":
		id, _, err := idAndDepth(name, args)
		if err != nil {
			return nil, err
		}
		return e.successors(ctx, id)
	case "children":
		set, err := oneSet(name, args)
		if err != nil {
			return nil, err
		}
		return e.children(ctx, set)
	case "descendants":
		set, err := oneSet(name, args)
		if err != nil {
			return nil, err
		}
		return e.descendants(ctx, set)
	case "obsolete":
		if len(args) != 0 {
			return nil, fmt.Errorf("obsolete() takes no arguments")
		}
		return e.obsolete(ctx)
	default:
		return nil, fmt.Errorf("unknown revset function %q", name)
	}
}

func idAndDepth(name string, args []any) (changeset.ID, int, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", 0, fmt.Errorf("%s() wants 1 or 2 arguments, got %d", name, len(args))
	}
	id, ok := args[0].(changeset.ID)
	if !ok {
		return "", 0, fmt.Errorf("%s() wants a changeset ID first, got %T", name, args[0])
	}
	depth := 0 // unlimited
	if len(args) == 2 {
		n, ok := args[1].(int)
		if !ok {
			return "", 0, fmt.Errorf("%s() wants an int depth, got %T", name, args[1])
		}
		depth = n
	}
	return id, depth, nil
}

func oneSet(name string, args []any) (*Set, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s() wants 1 argument, got %d", name, len(args))
	}
	set, ok := args[0].(*Set)
	if !ok {
		return nil, fmt.Errorf("%s() wants a *Set, got %T", name, args[0])
	}
	return set, nil
}

// predecessors returns id plus its transitive historical predecessors.
// depth > 0 limits the walk to that many hops.
func (e *Evaluator) predecessors(ctx context.Context, id changeset.ID, depth int) (*Set, error) {
	result := NewSet(id)
	frontier := []changeset.ID{id}
	for hop := 0; len(frontier) > 0 && (depth == 0 || hop < depth); hop++ {
		var next []changeset.ID
		for _, cur := range frontier {
			preds, err := e.store.DirectPredecessors(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, p := range preds {
				if !result.Contains(p) {
					result.Add(p)
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// successors returns id plus its transitive successors in mutation
// record order.
func (e *Evaluator) successors(ctx context.Context, id changeset.ID) (*Set, error) {
	result := NewSet(id)
	frontier := []changeset.ID{id}
	for len(frontier) > 0 {
		var next []changeset.ID
		for _, cur := range frontier {
			succs, err := e.store.Successors(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, s := range succs {
				if !result.Contains(s) {
					result.Add(s)
					next = append(next, s)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// children returns the direct children of the set, excluding the set
// itself.
func (e *Evaluator) children(ctx context.Context, set *Set) (*Set, error) {
	kids, err := e.store.Children(ctx, set.IDs())
	if err != nil {
		return nil, err
	}
	result := NewSet()
	for _, k := range kids {
		if !set.Contains(k) {
			result.Add(k)
		}
	}
	return result, nil
}

// descendants returns the set members plus all their transitive
// descendants, breadth first.
func (e *Evaluator) descendants(ctx context.Context, set *Set) (*Set, error) {
	result := NewSet(set.IDs()...)
	frontier := set.IDs()
	for len(frontier) > 0 {
		kids, err := e.store.Children(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []changeset.ID
		for _, k := range kids {
			if !result.Contains(k) {
				result.Add(k)
				next = append(next, k)
			}
		}
		frontier = next
	}
	return result, nil
}

// obsolete returns every changeset superseded by a mutation record.
func (e *Evaluator) obsolete(ctx context.Context) (*Set, error) {
	ids, err := e.store.ObsoleteIDs(ctx)
	if err != nil {
		return nil, err
	}
	return NewSet(ids...), nil
}
