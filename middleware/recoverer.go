package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/kubit-go/kubit"
	"github.com/sirupsen/logrus"
)

// Recoverer turns a panicking handler into a 500 and logs the stack
func Recoverer(next kubit.HandlerFunc) kubit.HandlerFunc {
	return func(wctx *kubit.WebContext) {
		defer func() {
			if r := recover(); r != nil {
				if r == http.ErrAbortHandler {
					panic(r)
				}

				if !wctx.Response().Written() {
					wctx.Response().WriteHeader(http.StatusInternalServerError)
				}

				wctx.Logger().WithFields(logrus.Fields{
					"stack": strings.Split(string(debug.Stack()), "\n"),
				}).Errorf("recovered from panic: %v", r)
			}
		}()

		next(wctx)
	}
}
