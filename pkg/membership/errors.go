package membership

import (
	"errors"
	"fmt"
)

// Code enumerates domain and authorization failures
type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeInvalidRole      Code = "INVALID_ROLE"
	CodeNotAdmin         Code = "NOT_ADMIN"
	CodeNotModerator     Code = "NOT_MODERATOR"
	CodeSelfAction       Code = "SELF_ACTION"
	CodeBannedCaller     Code = "BANNED_CALLER"
	CodeCreatorProtected Code = "CREATOR_PROTECTED"
	CodePrivateResource  Code = "PRIVATE_RESOURCE"
	CodeLastAdmin        Code = "LAST_ADMIN"
	CodeBannedMember     Code = "BANNED_MEMBER"
	CodeNotAMember       Code = "NOT_A_MEMBER"
	CodeAlreadyMember    Code = "ALREADY_MEMBER"
	CodeAlreadyBanned    Code = "ALREADY_BANNED"
	CodeNotBanned        Code = "NOT_BANNED"
	CodeUserNotFound     Code = "USER_NOT_FOUND"
	CodeResourceNotFound Code = "RESOURCE_NOT_FOUND"
	CodeInviteNotFound   Code = "INVITE_NOT_FOUND"
	CodeInvitePending    Code = "INVITE_PENDING"
	CodeInviteNotPending Code = "INVITE_NOT_PENDING"
	CodeInviteMismatch   Code = "INVITE_MISMATCH"
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"
)

// Kind groups codes by how a caller should treat them
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindInvariant
)

// Kind returns the category of the code
func (c Code) Kind() Kind {
	switch c {
	case CodeUnauthenticated:
		return KindAuthentication
	case CodeNotAdmin, CodeNotModerator, CodeSelfAction, CodeBannedCaller,
		CodeCreatorProtected, CodePrivateResource, CodeInviteMismatch:
		return KindAuthorization
	case CodeNotAMember, CodeUserNotFound, CodeResourceNotFound, CodeInviteNotFound:
		return KindNotFound
	case CodeAlreadyMember, CodeInvitePending, CodeInviteNotPending, CodeConcurrentUpdate:
		return KindConflict
	case CodeLastAdmin, CodeBannedMember, CodeAlreadyBanned, CodeNotBanned:
		return KindInvariant
	default:
		return KindValidation
	}
}

// Error is a domain or authorization failure. It never wraps an
// infrastructure error; those are returned as plain wrapped errors.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so errors.Is(err, ErrLastAdmin) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of e carrying an extra detail field
func (e *Error) WithDetail(key string, value any) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Details: make(map[string]any, len(e.Details)+1)}
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return out
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons
var (
	ErrUnauthenticated  = newError(CodeUnauthenticated, "authentication required")
	ErrNotAdmin         = newError(CodeNotAdmin, "only admins can perform this action")
	ErrNotModerator     = newError(CodeNotModerator, "only admins and moderators can invite users")
	ErrSelfAction       = newError(CodeSelfAction, "you cannot perform this action on yourself")
	ErrBannedCaller     = newError(CodeBannedCaller, "you are banned from this resource")
	ErrCreatorProtected = newError(CodeCreatorProtected, "the board creator cannot be banned or removed")
	ErrLastAdmin        = newError(CodeLastAdmin, "cannot remove the last admin")
	ErrBannedMember     = newError(CodeBannedMember, "cannot change the role of a banned member, unban them first")
	ErrNotAMember       = newError(CodeNotAMember, "member not found")
	ErrAlreadyMember    = newError(CodeAlreadyMember, "user is already a member")
	ErrAlreadyBanned    = newError(CodeAlreadyBanned, "user is already banned")
	ErrNotBanned        = newError(CodeNotBanned, "user is not banned")
	ErrUserNotFound     = newError(CodeUserNotFound, "user not found")
	ErrInviteNotFound   = newError(CodeInviteNotFound, "invite not found")
	ErrInvitePending    = newError(CodeInvitePending, "an invite is already pending for this user")
	ErrInviteNotPending = newError(CodeInviteNotPending, "invite has already been responded to")
	ErrInviteMismatch   = newError(CodeInviteMismatch, "this invite is not addressed to you")
	ErrConcurrentUpdate = newError(CodeConcurrentUpdate, "the resource was modified concurrently, please retry")
)

var sentinels = map[Code]*Error{}

func init() {
	for _, e := range []*Error{
		ErrUnauthenticated, ErrNotAdmin, ErrNotModerator, ErrSelfAction, ErrBannedCaller,
		ErrCreatorProtected, ErrLastAdmin, ErrBannedMember, ErrNotAMember, ErrAlreadyMember,
		ErrAlreadyBanned, ErrNotBanned, ErrUserNotFound, ErrInviteNotFound, ErrInvitePending,
		ErrInviteNotPending, ErrInviteMismatch, ErrConcurrentUpdate,
	} {
		sentinels[e.Code] = e
	}
}

// errorFor returns the canonical error for a code
func errorFor(code Code) *Error {
	if e, ok := sentinels[code]; ok {
		return e
	}
	switch code {
	case CodePrivateResource:
		return newError(code, "this resource is private")
	case CodeInvalidRole:
		return newError(code, "invalid role")
	}
	return newError(code, "request not allowed")
}

func errResourceNotFound(ref ResourceRef) *Error {
	return &Error{
		Code:    CodeResourceNotFound,
		Message: fmt.Sprintf("%s not found", ref.Scope),
		Details: map[string]any{"id": ref.ID},
	}
}

func errInvalid(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, format, args...)
}

// CodeOf returns the domain code carried by err, if any
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// IsDomainError reports whether err is a domain/authorization failure
// rather than an infrastructure failure
func IsDomainError(err error) bool {
	_, ok := CodeOf(err)
	return ok
}
