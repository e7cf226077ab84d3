// Package queryir provides the structured intermediate representation the
// query generator builds and the renderers consume.
//
// A generated query is a clause list (joins, WHERE predicates, ORDER BY
// entries) plus a separate parameter list. Nothing is concatenated into
// text until a renderer walks the tree, so authorization and permission
// fragments compose as values instead of order-sensitive string splices.
//
//	[criteria] -> [querygen] -> [Query IR + Params] -> [querytext] object-query text
//	                                                -> [querysql]  dialect SQL + args
//
// SEALED INTERFACES:
//
// Query, Predicate and Operand are sealed interfaces using the marker method
// pattern. Only types in this package can implement them, so renderers can
// switch exhaustively:
//
//	switch p := pred.(type) {
//	case queryir.Like:
//	case queryir.Compare:
//	case queryir.In:
//	case queryir.Raw:
//	case queryir.PermissionCount:
//	case queryir.Group:
//	}
//
// PARAMETERS:
//
// Values are never interpolated. Predicates reference parameters by name;
// Params holds the Go native values in binding order. The data and count
// queries of one generation share a single Params list.
package queryir
