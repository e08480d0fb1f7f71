package middleware

import (
	"github.com/kubit-go/kubit"
)

// SignedURL only lets requests through that carry a valid signature
// issued by Application.MakeSignedURL, others get a 403
//
//	r.Namespace("/unsubscribe", func(r *kubit.Route) {
//		r.Use(middleware.SignedURL)
//		r.Get("/{id}", unsubscribe)
//	})
func SignedURL(next kubit.HandlerFunc) kubit.HandlerFunc {
	return func(wctx *kubit.WebContext) {
		if err := wctx.Application().VerifySignedURL(wctx.Request()); err != nil {
			wctx.Logger().Debugf("rejected signed url: %v", err)
			wctx.RenderError(err)
			return
		}

		next(wctx)
	}
}
