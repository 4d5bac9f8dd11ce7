package authapi

import "time"

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// updateRequest carries a partial overlay. Absent fields leave the stored
// values untouched; a present id re-specifies the record id.
type updateRequest struct {
	ID       *string `json:"id"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type identityResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	Token    string           `json:"token"`
	Expires  time.Time        `json:"expires"`
	Identity identityResponse `json:"identity"`
}

// dataResponse is the success envelope: every 2xx body is {"data": ...}.
type dataResponse struct {
	Data any `json:"data"`
}
