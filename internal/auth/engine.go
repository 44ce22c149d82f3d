package auth

import (
	"hrai/internal/config"
	"hrai/internal/domain"
)

// Reason classifies why a request was denied. Allowed carries no reason.
type Reason string

const (
	ReasonAllowed              Reason = "allowed"
	ReasonNotAuthorizedDM      Reason = "not_authorized_dm"
	ReasonChannelNotAuthorized Reason = "channel_not_authorized"
	ReasonMissingRole          Reason = "missing_role"
	ReasonUnknownChannelKind   Reason = "unknown_channel_kind"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Engine decides whether a sender may invoke the bot. It is a pure function
// of the inbound message and the configured access lists; it never talks to
// the platform and has no side effects.
type Engine struct {
	authorizedUsers    map[string]struct{}
	authorizedChannels map[string]struct{}
	requiredRole       string
}

func NewEngine(cfg config.AccessConfig) *Engine {
	e := &Engine{
		authorizedUsers:    make(map[string]struct{}, len(cfg.AuthorizedUsers)),
		authorizedChannels: make(map[string]struct{}, len(cfg.AuthorizedChannels)),
		requiredRole:       cfg.RequiredRole,
	}
	for _, id := range cfg.AuthorizedUsers {
		e.authorizedUsers[id] = struct{}{}
	}
	for _, id := range cfg.AuthorizedChannels {
		e.authorizedChannels[id] = struct{}{}
	}
	return e
}

// Decide evaluates the access rules in order:
//
//  1. allow-listed senders always pass,
//  2. direct messages are otherwise denied,
//  3. group channels must pass the channel allow-list (when configured)
//     and then the required-role check,
//  4. anything else is denied.
func (e *Engine) Decide(senderID string, kind domain.ChatKind, chatID string, roles []domain.RoleRef) Decision {
	if _, ok := e.authorizedUsers[senderID]; ok {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}

	switch kind {
	case domain.ChatDirect:
		return Decision{Reason: ReasonNotAuthorizedDM}

	case domain.ChatGroup:
		if len(e.authorizedChannels) > 0 {
			if _, ok := e.authorizedChannels[chatID]; !ok {
				return Decision{Reason: ReasonChannelNotAuthorized}
			}
		}
		if !e.hasRequiredRole(roles) {
			return Decision{Reason: ReasonMissingRole}
		}
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}

	return Decision{Reason: ReasonUnknownChannelKind}
}

// hasRequiredRole matches the configured role against either the role name
// or the role ID, mirroring how platforms expose both.
func (e *Engine) hasRequiredRole(roles []domain.RoleRef) bool {
	if e.requiredRole == "" {
		return false
	}
	for _, r := range roles {
		if r.Name == e.requiredRole || r.ID == e.requiredRole {
			return true
		}
	}
	return false
}

// RequiredRole reports the configured role identifier, used when wording
// denial replies.
func (e *Engine) RequiredRole() string {
	return e.requiredRole
}
