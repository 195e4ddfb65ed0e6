package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	db "github.com/katatrina/schoolhub-BE/internal/db/sqlc"
	"github.com/katatrina/schoolhub-BE/internal/token"
	"github.com/katatrina/schoolhub-BE/internal/tokenstore"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/rs/zerolog/log"
)

var (
	errIncorrectCredentials = errors.New("incorrect email or password")
	errRefreshTokenReused   = errors.New("refresh token was already used or revoked")
	errUserNoLongerExists   = errors.New("user no longer exists")
)

type authResponse struct {
	User                  db.User   `json:"user"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// issueTokens mints an access/refresh pair and registers the refresh token
// so it can be exchanged exactly once.
func (server *Server) issueTokens(ctx context.Context, user db.User) (authResponse, error) {
	accessToken, accessPayload, err := server.tokenMaker.CreateToken(user.ID, string(user.Role), token.TokenTypeAccess, server.config.AccessTokenDuration)
	if err != nil {
		return authResponse{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, refreshPayload, err := server.tokenMaker.CreateToken(user.ID, string(user.Role), token.TokenTypeRefresh, server.config.RefreshTokenDuration)
	if err != nil {
		return authResponse{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	err = server.refreshStore.Save(ctx, refreshPayload.ID, user.ID, server.config.RefreshTokenDuration)
	if err != nil {
		return authResponse{}, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return authResponse{
		User:                  user,
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessPayload.ExpiresAt.Time,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: refreshPayload.ExpiresAt.Time,
	}, nil
}

type loginUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (server *Server) loginUser(ctx *gin.Context) {
	req := new(loginUserRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	user, err := server.dbStore.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			ctx.JSON(http.StatusUnauthorized, errorResponse(errIncorrectCredentials))
			return
		}

		log.Err(err).Msg("failed to find user")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	if err = util.CheckPassword(req.Password, user.HashedPassword); err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errIncorrectCredentials))
		return
	}

	resp, err := server.issueTokens(ctx, user)
	if err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to issue tokens")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user logged in")
	ctx.JSON(http.StatusOK, resp)
}

type loginUserWithGoogleRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// loginUserWithGoogle signs in an existing account whose email matches the
// Google identity. Accounts are provisioned by the school, never on first login.
func (server *Server) loginUserWithGoogle(ctx *gin.Context) {
	if server.googleIDTokenValidator == nil {
		ctx.JSON(http.StatusNotImplemented, errorResponse(ErrGoogleLoginDisabled))
		return
	}

	req := new(loginUserWithGoogleRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	payload, err := server.googleIDTokenValidator.Validate(ctx, req.IDToken, server.config.GoogleClientID)
	if err != nil {
		log.Err(err).Msg("failed to validate google id token")
		ctx.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}

	email, _ := payload.Claims["email"].(string)
	if verified, _ := payload.Claims["email_verified"].(bool); email == "" || !verified {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errors.New("google account has no verified email")))
		return
	}

	user, err := server.dbStore.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("no account registered for %s", email)))
			return
		}

		log.Err(err).Msg("failed to find user")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	resp, err := server.issueTokens(ctx, user)
	if err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to issue tokens")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

type refreshAccessTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// refreshAccessToken exchanges a refresh token for a new pair. The presented
// refresh token is consumed, so replaying it fails with 401.
func (server *Server) refreshAccessToken(ctx *gin.Context) {
	req := new(refreshAccessTokenRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	payload, err := server.tokenMaker.VerifyToken(req.RefreshToken, token.TokenTypeRefresh)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}

	userID, err := server.refreshStore.Consume(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			log.Warn().Str("user_id", payload.Subject).Str("token_id", payload.ID).Msg("refresh token reuse rejected")
			ctx.JSON(http.StatusUnauthorized, errorResponse(errRefreshTokenReused))
			return
		}

		log.Err(err).Msg("failed to consume refresh token")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	if userID != payload.Subject {
		ctx.JSON(http.StatusUnauthorized, errorResponse(token.ErrInvalidToken))
		return
	}

	user, err := server.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			ctx.JSON(http.StatusUnauthorized, errorResponse(errUserNoLongerExists))
			return
		}

		log.Err(err).Msg("failed to get user")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	resp, err := server.issueTokens(ctx, user)
	if err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to issue tokens")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

type logoutUserRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// logoutUser revokes the refresh token. It succeeds for tokens that are
// already expired or revoked.
func (server *Server) logoutUser(ctx *gin.Context) {
	req := new(logoutUserRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	payload, err := server.tokenMaker.VerifyToken(req.RefreshToken, token.TokenTypeRefresh)
	if err != nil {
		ctx.Status(http.StatusNoContent)
		return
	}

	if err = server.refreshStore.Revoke(ctx, payload.ID); err != nil {
		log.Err(err).Str("user_id", payload.Subject).Msg("failed to revoke refresh token")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	log.Info().Str("user_id", payload.Subject).Msg("user logged out")
	ctx.Status(http.StatusNoContent)
}

func (server *Server) getAuthenticatedUser(ctx *gin.Context) {
	authPayload := authPayloadFrom(ctx)

	user, err := server.dbStore.GetUserByID(ctx, authPayload.Subject)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			ctx.JSON(http.StatusUnauthorized, errorResponse(errUserNoLongerExists))
			return
		}

		log.Err(err).Msg("failed to get user")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, user)
}
