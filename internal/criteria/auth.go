package criteria

import (
	"fmt"
	"strings"
)

// Permission is a global or resource level permission token held by roles.
type Permission string

const (
	PermManageSecurity     Permission = "MANAGE_SECURITY"
	PermManageInventory    Permission = "MANAGE_INVENTORY"
	PermViewResource       Permission = "VIEW_RESOURCE"
	PermModifyResource     Permission = "MODIFY_RESOURCE"
	PermManageAlerts       Permission = "MANAGE_ALERTS"
	PermControl            Permission = "CONTROL"
	PermConfigureRead      Permission = "CONFIGURE_READ"
	PermConfigureWrite     Permission = "CONFIGURE_WRITE"
	PermManageSettings     Permission = "MANAGE_SETTINGS"
	PermManageBundle       Permission = "MANAGE_BUNDLE"
	PermManageMeasurements Permission = "MANAGE_MEASUREMENTS"
)

// TokenType names the anchor an authorization check joins through.
type TokenType int

const (
	// TokenResource joins resource -> implicit groups -> roles -> subjects.
	TokenResource TokenType = iota
	// TokenGroup joins group -> roles -> subjects.
	TokenGroup
)

func (t TokenType) String() string {
	switch t {
	case TokenResource:
		return "RESOURCE"
	case TokenGroup:
		return "GROUP"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// ParseTokenType accepts "resource" or "group" in any case.
func ParseTokenType(s string) (TokenType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RESOURCE":
		return TokenResource, nil
	case "GROUP":
		return TokenGroup, nil
	default:
		return 0, fmt.Errorf("unsupported authorization token type %q", s)
	}
}

// AuthorizationContext restricts results to rows the subject may see.
//
// JoinPath names the association from the queried entity to the anchor
// (e.g. "resource" or "definition.resource"). Empty means the queried entity
// is the anchor itself.
type AuthorizationContext struct {
	SubjectID int64
	Type      TokenType
	JoinPath  string
}

// ResourceAuthorization is shorthand for a RESOURCE token context.
func ResourceAuthorization(subjectID int64, joinPath string) *AuthorizationContext {
	return &AuthorizationContext{SubjectID: subjectID, Type: TokenResource, JoinPath: joinPath}
}

// GroupAuthorization is shorthand for a GROUP token context.
func GroupAuthorization(subjectID int64, joinPath string) *AuthorizationContext {
	return &AuthorizationContext{SubjectID: subjectID, Type: TokenGroup, JoinPath: joinPath}
}
