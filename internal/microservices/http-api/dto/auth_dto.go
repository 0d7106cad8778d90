package dto

// LoginRequest: operator credentials for the admin API
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse: a token valid for the admin API and for controller sessions
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // always "Bearer"
	Username    string `json:"username"`
	ExpiresIn   int64  `json:"expires_in"` // seconds, 0 when the token does not expire
}
