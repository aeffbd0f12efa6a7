package auth

type LoginRequest struct {
	Username string `form:"username" json:"username" validate:"required"`
	Password string `form:"password" json:"password" validate:"required"`
}

type LoginResult struct {
	Username     string `json:"username"`
	SessionToken string `json:"token"`
}
