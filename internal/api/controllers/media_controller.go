package controllers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/media"
)

const uploadField = "file"

func RegisterMediaRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/marketing")

	g.POST("/media", gate.Require(access.AppMarketing, access.CapUpload, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		fh, err := ctx.FormFile(uploadField)
		if err != nil {
			if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
				writeError(ctx, stdCtx, "file is required", perrors.NewErrInvalidRequest("multipart field \"file\" is required", err))
				return
			}
			writeError(ctx, stdCtx, "Invalid upload", perrors.NewErrInvalidRequest("invalid multipart form", err))
			return
		}

		f, err := fh.Open()
		if err != nil {
			writeError(ctx, stdCtx, "Failed to read upload", err)
			return
		}
		defer f.Close()

		asset, err := svc.Media.Upload(stdCtx, p, media.Upload{
			Filename:     fh.Filename,
			DeclaredType: fh.Header.Get("Content-Type"),
			Size:         fh.Size,
			Body:         f,
		})
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to upload media", err)
			return
		}

		writeCreated(ctx, stdCtx, "Media uploaded", asset)
	}))

	g.GET("/media", gate.Require(access.AppMarketing, access.CapUpload, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 20)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		assets, total, err := svc.Media.List(stdCtx, media.Filter{Category: query(ctx, "category")}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list media", err)
			return
		}

		writeList(ctx, stdCtx, "media", assets, total, page)
	}))
}
