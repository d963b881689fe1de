// Package calls issues video-call credentials. A credential is minted only
// after the caller is authorized against the conversation it names, and it
// carries a single room grant derived from that conversation.
//
// Issuance is stateless and one-shot: there is no revocation, and expiry is
// enforced by the video provider, so the TTL bounds what a leaked
// credential can do.
package calls

import (
	"context"
	"time"

	"github.com/Vasu1712/scenyx-connect/internal/access"
	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

type Authorizer interface {
	Authorize(ctx context.Context, conversationID, userID string) (*access.Membership, error)
}

// Policy controls credential lifetime and whether caller-supplied room and
// identity overrides are honoured.
//
// With AllowOverrides false, an override must equal the value the issuer
// would derive anyway. With it true, overrides are bound as given and
// logged, which lets a caller authorized for one conversation obtain a
// token for an arbitrary room string.
type Policy struct {
	TTL            time.Duration
	AllowOverrides bool
}

type IssueRequest struct {
	ConversationID string
	CallerID       string
	// RoomName and Identity are optional overrides.
	RoomName string
	Identity string
}

type Issuer struct {
	authorizer Authorizer
	signer     *Signer
	policy     Policy
	now        func() time.Time
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewIssuer(authorizer Authorizer, signer *Signer, policy Policy, log *logger.Logger, m *metrics.Metrics) *Issuer {
	policy.TTL = policy.TTL.Truncate(time.Second)
	if policy.TTL <= 0 {
		policy.TTL = DefaultTTL
	}
	return &Issuer{
		authorizer: authorizer,
		signer:     signer,
		policy:     policy,
		now:        time.Now,
		log:        log.Component("issuer"),
		metrics:    m,
	}
}

// Issue authorizes req.CallerID against req.ConversationID and mints a
// credential for the conversation's room.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*models.CallCredential, error) {
	cred, err := i.issue(ctx, req)
	i.metrics.RecordIssue(issueOutcome(err))
	return cred, err
}

func (i *Issuer) issue(ctx context.Context, req IssueRequest) (*models.CallCredential, error) {
	if req.CallerID == "" {
		return nil, apperr.Unauthenticated("caller identity is required")
	}
	membership, err := i.authorizer.Authorize(ctx, req.ConversationID, req.CallerID)
	if err != nil {
		return nil, err
	}

	canonicalRoom := pairing.RoomName(membership.Conversation.ID)
	room, err := i.bind("roomName", req.RoomName, canonicalRoom, req)
	if err != nil {
		return nil, err
	}
	identity, err := i.bind("identity", req.Identity, req.CallerID, req)
	if err != nil {
		return nil, err
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.policy.TTL)
	token, err := i.signer.Sign(identity, room, issuedAt, expiresAt)
	if err != nil {
		return nil, apperr.Upstream("credential signing failed", err)
	}

	i.log.Info().
		Str("conversation_id", membership.Conversation.ID).
		Str("universe_id", membership.Universe.ID).
		Str("room", room).
		Time("expires_at", expiresAt).
		Msg("call credential issued")

	return &models.CallCredential{
		Token:     token,
		RoomName:  room,
		Identity:  identity,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// bind resolves an optional override against the derived value.
func (i *Issuer) bind(field, requested, derived string, req IssueRequest) (string, error) {
	if requested == "" || requested == derived {
		return derived, nil
	}
	if !i.policy.AllowOverrides {
		return "", apperr.InvalidInput(field + " does not match the authorized conversation")
	}
	i.log.Warn().
		Str("field", field).
		Str("requested", requested).
		Str("derived", derived).
		Str("conversation_id", req.ConversationID).
		Str("caller_id", req.CallerID).
		Msg("binding caller-supplied override")
	return requested, nil
}

func issueOutcome(err error) string {
	switch apperr.CodeOf(err) {
	case "":
		return metrics.IssueIssued
	case apperr.CodeUnauthorized, apperr.CodeUnauthenticated:
		return metrics.IssueUnauthorized
	case apperr.CodeResourceInactive:
		return metrics.IssueInactive
	case apperr.CodeInvalidInput:
		return metrics.IssueInvalid
	default:
		return metrics.IssueError
	}
}
