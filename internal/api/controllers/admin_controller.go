package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/services/user"
)

func RegisterAdminRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/admin")

	g.GET("/users", gate.Require(access.AppAdmin, access.CapManageUsers, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		users, total, err := svc.User.List(stdCtx, user.Filter{
			Search: query(ctx, "search"),
			Role:   query(ctx, "role"),
			Active: query(ctx, "active"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list users", err)
			return
		}

		writeList(ctx, stdCtx, "users", users, total, page)
	}))

	g.POST("/users", gate.Require(access.AppAdmin, access.CapManageUsers, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req user.CreateUserRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		u, err := svc.User.Create(stdCtx, &req)
		if err != nil {
			if errors.Is(err, user.ErrUserAlreadyExists) {
				writeError(ctx, stdCtx, "User already exists", perrors.New(perrors.ErrCodeConflict, err.Error(), err))
				return
			}
			writeServiceError(ctx, stdCtx, "Failed to create user", err)
			return
		}

		svc.Activity.Record(stdCtx, p, activity.ResourceUser, u.ID.String(), "created", fmt.Sprintf("Added %s as %s", u.Email, u.Role))
		writeCreated(ctx, stdCtx, "User created", u)
	}))

	g.PATCH("/users/{id}", gate.Require(access.AppAdmin, access.CapManageUsers, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid user id", err)
			return
		}

		var req user.UpdateUserRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		u, err := svc.User.Update(stdCtx, p, id, &req)
		if err != nil {
			if errors.Is(err, user.ErrSelfDeactivation) {
				writeError(ctx, stdCtx, "Invalid update", perrors.NewErrInvalidRequest(err.Error(), err))
				return
			}
			writeServiceError(ctx, stdCtx, "Failed to update user", err)
			return
		}

		svc.Activity.Record(stdCtx, p, activity.ResourceUser, u.ID.String(), "updated", fmt.Sprintf("Updated %s (role %s, active %t)", u.Email, u.Role, u.IsActive))
		writeOK(ctx, stdCtx, "User updated", u)
	}))
}
