package queryir

import "strings"

// Query represents a generated query.
//
// This is a sealed interface - only types in this package implement it.
// Renderers switch exhaustively over the concrete types.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a WHERE condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Like: path [NOT] like :param ESCAPE 'c', optionally case folded
//   - Compare: path = :param
//   - In: path IN ( :param )
//   - Raw: a caller supplied override fragment
//   - PermissionCount: the subject holds every required permission
//   - Group: parenthesized AND / OR of predicates
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Operand is a value position in an ORDER BY entry.
//
// This is a sealed interface - only types in this package implement it.
type Operand interface {
	operandNode() // Marker method - seals interface to this package
}

// Select is the one query shape the generator produces.
//
// Semantics:
//
//	SELECT <alias> | COUNT(<alias>) FROM <Entity> <alias>
//	  <joins...> WHERE <where[0]> AND <where[1]> ... ORDER BY <order...>
//
// Where entries are always AND-ed together. The caller-selected
// conjunction of filters lives inside a single Group.
type Select struct {
	Entity  string
	Alias   string
	Count   bool
	Joins   []Join
	Where   []Predicate
	OrderBy []Order
}

func (Select) queryNode() {}

// JoinKind selects the join flavour.
type JoinKind int

const (
	// InnerJoin filters rows without a match. Used for authorization.
	InnerJoin JoinKind = iota
	// LeftJoin keeps unmatched rows. Used to reach multi-hop sort fields.
	LeftJoin
	// LeftJoinFetch eagerly loads an association with its owner.
	LeftJoinFetch
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	case LeftJoinFetch:
		return "LEFT JOIN FETCH"
	default:
		return "JOIN?"
	}
}

// Join walks an association from a path. Alias names the joined entity
// and is empty for fetch joins.
type Join struct {
	Kind  JoinKind
	Path  Path
	Alias string
}

// Path is an alias followed by zero or more field hops, e.g. ad.resource.name.
type Path struct {
	Root   string
	Fields []string
}

// P builds a Path from a dotted string such as "ad.resource".
func P(dotted string) Path {
	parts := strings.Split(dotted, ".")
	return Path{Root: parts[0], Fields: parts[1:]}
}

func (p Path) String() string {
	if len(p.Fields) == 0 {
		return p.Root
	}
	return p.Root + "." + strings.Join(p.Fields, ".")
}

func (Path) operandNode() {}

// Ordinal is a 1-based select list position, rendered as a bare number.
type Ordinal string

func (Ordinal) operandNode() {}

// Verbatim is an ORDER BY expression rendered exactly as given.
type Verbatim string

func (Verbatim) operandNode() {}

// Order is one ORDER BY entry. Direction is "ASC" or "DESC".
type Order struct {
	By        Operand
	Direction string
}

// Like compares a text path against a pattern parameter.
//
//	[LOWER( ]path[ )] like :param ESCAPE 'c'
type Like struct {
	Path   Path
	Lower  bool
	Param  string
	Escape string
}

func (Like) predicateNode() {}

// Compare is an equality comparison against a parameter.
type Compare struct {
	Path  Path
	Param string
}

func (Compare) predicateNode() {}

// In tests membership in a collection parameter.
type In struct {
	Path  Path
	Param string
}

func (In) predicateNode() {}

// Raw is an override fragment. Text references parameters as ":name" and
// paths of the root alias as "alias.field". Params lists every parameter
// it references in order of first appearance.
type Raw struct {
	Text   string
	Params []string
	Escape string // non-empty appends ESCAPE 'c'
}

func (Raw) predicateNode() {}

// PermissionCount holds when the subject has every required permission:
//
//	( SELECT COUNT(DISTINCT p) FROM Subject inner JOIN inner.roles r
//	  JOIN r.permissions p WHERE inner.id = :subject AND p IN ( :perms ) ) = :size
type PermissionCount struct {
	SubjectParam string
	PermsParam   string
	SizeParam    string
}

func (PermissionCount) predicateNode() {}

// Conjunction joins the members of a Group.
type Conjunction string

const (
	AND Conjunction = "AND"
	OR  Conjunction = "OR"
)

// Group is a parenthesized conjunction or disjunction.
type Group struct {
	Op    Conjunction
	Terms []Predicate
}

func (Group) predicateNode() {}
