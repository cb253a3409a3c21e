package events

import "github.com/gin-gonic/gin"

// RouteOptions carries the middleware the event routes are wrapped in. Auth
// is required; nil Admin, Cache and JoinLimit are skipped.
type RouteOptions struct {
	Auth      gin.HandlerFunc
	Admin     gin.HandlerFunc
	Cache     gin.HandlerFunc
	JoinLimit gin.HandlerFunc
}

// Routes registers the event and type endpoints on r.
func (h *Handler) Routes(r gin.IRouter, opts RouteOptions) {
	r.GET("/events", chain(opts.Cache, h.List)...)
	r.GET("/events/:id", chain(opts.Cache, h.Details)...)
	r.GET("/types", chain(opts.Cache, h.Types)...)

	authed := r.Group("", opts.Auth)
	authed.POST("/types", chain(opts.Admin, h.CreateType)...)
	authed.POST("/events", h.Create)
	authed.GET("/events/:id/edit", h.Edit)
	authed.PUT("/events/:id", h.Update)
	authed.POST("/events/:id/join", chain(opts.JoinLimit, h.Join)...)
	authed.POST("/events/:id/leave", chain(opts.JoinLimit, h.Leave)...)
	authed.GET("/events/:id/joined", h.IsJoined)
	authed.GET("/events/:id/participants", h.Participants)
	authed.GET("/me/joined", h.Joined)
}

func chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
