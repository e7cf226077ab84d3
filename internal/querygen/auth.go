package querygen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/schema"
)

// Association names the authorization chain walks through.
const (
	fieldImplicitGroups = "implicitGroups"
	fieldRoles          = "roles"
	fieldSubjects       = "subjects"
)

// authorization adds the join chain from the queried entity to the subject
// plus the subject and permission predicates. Both queries carry them.
func (b *build) authorization(auth *criteria.AuthorizationContext) error {
	if auth == nil {
		if len(b.c.RequiredPermissions) > 0 {
			b.gen.logger.Warn("required permissions ignored without authorization context",
				"entity", b.ent.Name,
				"permissions", b.c.RequiredPermissions)
		}
		return nil
	}

	var joinPath []string
	if auth.JoinPath != "" {
		joinPath = strings.Split(auth.JoinPath, ".")
	}

	type hop struct {
		root  string
		field []string
		alias string
	}
	var hops []hop
	anchor := b.alias

	switch auth.Type {
	case criteria.TokenResource:
		if joinPath != nil {
			hops = append(hops, hop{b.alias, joinPath, AliasAuthResource})
			anchor = AliasAuthResource
		}
		hops = append(hops,
			hop{anchor, []string{fieldImplicitGroups}, AliasAuthGroup},
			hop{AliasAuthGroup, []string{fieldRoles}, AliasAuthRole},
		)
	case criteria.TokenGroup:
		if joinPath != nil {
			hops = append(hops, hop{b.alias, joinPath, AliasAuthGroup})
			anchor = AliasAuthGroup
		}
		hops = append(hops, hop{anchor, []string{fieldRoles}, AliasAuthRole})
	default:
		return fmt.Errorf("unsupported authorization token type %s", auth.Type)
	}
	hops = append(hops, hop{AliasAuthRole, []string{fieldSubjects}, AliasAuthSubject})

	full := append(slices.Clone(joinPath), chainFor(auth.Type)...)
	if _, err := b.gen.reg.Walk(b.ent.Name, full); err != nil {
		return err
	}

	for _, h := range hops {
		b.authJoins = append(b.authJoins, queryir.Join{
			Kind:  queryir.InnerJoin,
			Path:  queryir.Path{Root: h.root, Fields: h.field},
			Alias: h.alias,
		})
	}

	subject := queryir.Path{Root: AliasAuthSubject, Fields: []string{"id"}}
	b.authPreds = append(b.authPreds, queryir.Compare{Path: subject, Param: ParamSubjectID})
	if err := b.bindReserved(ParamSubjectID, auth.SubjectID); err != nil {
		return err
	}

	perms := uniquePermissions(b.c.RequiredPermissions)
	if len(perms) == 0 {
		return nil
	}
	list := make([]any, len(perms))
	for i, p := range perms {
		list[i] = string(p)
	}
	b.authPreds = append(b.authPreds, queryir.PermissionCount{
		SubjectParam: ParamSubjectID,
		PermsParam:   ParamRequiredPerms,
		SizeParam:    ParamRequiredPermsSize,
	})
	if err := b.bindReserved(ParamRequiredPerms, list); err != nil {
		return err
	}
	return b.bindReserved(ParamRequiredPermsSize, int64(len(list)))
}

// bindReserved binds an authorization parameter. A filter already bound
// under the same name is a configuration error.
func (b *build) bindReserved(name string, v any) error {
	if err := b.params.Add(name, v); err != nil {
		return &schema.ConfigError{
			Code:    schema.ErrCodeInvalidOverride,
			Entity:  b.ent.Name,
			Field:   name,
			Message: fmt.Sprintf("parameter name is reserved for authorization: %v", err),
		}
	}
	return nil
}

// chainFor lists the fixed associations walked after the join path.
func chainFor(t criteria.TokenType) []string {
	if t == criteria.TokenGroup {
		return []string{fieldRoles, fieldSubjects}
	}
	return []string{fieldImplicitGroups, fieldRoles, fieldSubjects}
}

// uniquePermissions drops repeats, keeping first occurrences; the count
// predicate compares distinct matches against the list size.
func uniquePermissions(perms []criteria.Permission) []criteria.Permission {
	out := make([]criteria.Permission, 0, len(perms))
	for _, p := range perms {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
