package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/token"
)

const (
	authorizationHeaderKey  = "Authorization"
	authorizationTypeBearer = "Bearer"
	authorizationPayloadKey = "authPayload"
	accessTokenQueryKey     = "token"
)

var (
	errMissingAuthorization = errors.New("authorization header is not provided")
	errInvalidAuthorization = errors.New("invalid authorization header format")
	errUnsupportedAuthType  = errors.New("unsupported authorization header type")
)

// authMiddleware authenticates the user.
func authMiddleware(tokenMaker token.Maker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		accessToken, err := bearerToken(ctx.GetHeader(authorizationHeaderKey))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		payload, err := tokenMaker.VerifyToken(accessToken, token.TokenTypeAccess)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		ctx.Set(authorizationPayloadKey, payload)
		ctx.Next()
	}
}

// requiredRoles must run after authMiddleware.
func requiredRoles(roles ...notification.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authPayload := ctx.MustGet(authorizationPayloadKey).(*token.Payload)

		for _, role := range roles {
			if notification.Role(authPayload.Role) == role {
				ctx.Next()
				return
			}
		}

		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(ErrInsufficientPermission))
	}
}

func bearerToken(authorizationHeader string) (string, error) {
	if authorizationHeader == "" {
		return "", errMissingAuthorization
	}

	fields := strings.Fields(authorizationHeader)
	if len(fields) != 2 {
		return "", errInvalidAuthorization
	}

	if fields[0] != authorizationTypeBearer {
		return "", errUnsupportedAuthType
	}

	return fields[1], nil
}

func authPayloadFrom(ctx *gin.Context) *token.Payload {
	return ctx.MustGet(authorizationPayloadKey).(*token.Payload)
}
