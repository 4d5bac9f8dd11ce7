package authapi

import (
	"errors"
	"strings"

	"github.com/lohmander/brink-auth/cmd/identity"
)

func toIdentityResponse(rec identity.Identity) identityResponse {
	return identityResponse{
		ID:        rec.ID,
		Username:  rec.Username,
		CreatedAt: rec.CreatedAt,
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// conflictMessage names the colliding field. Conflicts are about usernames
// except when an update re-specifies a record id that is already in use.
func conflictMessage(err error) (code, msg string) {
	var ce identity.ConflictError
	if errors.As(err, &ce) && ce.Field == "id" {
		return "id_taken", "id is already taken"
	}
	return "username_taken", "username is already taken"
}

// invalidInputMessage extracts the human-readable detail from a validation
// error, falling back to a generic message.
func invalidInputMessage(err error) string {
	var opErr identity.OpError
	if errors.As(err, &opErr) && opErr.Msg != "" {
		return opErr.Msg
	}
	return "invalid input"
}
