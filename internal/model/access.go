package model

// Identity is the hosting-service account behind an access token.
type Identity struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// AccessDecision is the outcome of an access verification. It is computed
// fresh on every call and never cached: repository permissions can change
// between two requests.
//
// Exactly one of IsOwner / Permission is set when HasAccess is true; Error is
// set when HasAccess is false.
type AccessDecision struct {
	HasAccess  bool   `json:"hasAccess"`
	Username   string `json:"username,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Permission string `json:"permission,omitempty"`
	IsOwner    bool   `json:"isOwner,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Decision error messages. The admin panel renders different text for each.
const (
	AccessNotAuthenticated  = "Not authenticated"
	AccessVerificationFail  = "Verification failed"
	AccessNotCollaborator   = "Not a collaborator"
	AccessInsufficientPerms = "Insufficient permissions"
)

// Denied builds a negative decision.
func Denied(reason string) AccessDecision {
	return AccessDecision{HasAccess: false, Error: reason}
}
