package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kubit-go/kubit"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs every completed request with its status, size and duration
func RequestLogger(next kubit.HandlerFunc) kubit.HandlerFunc {
	return func(wctx *kubit.WebContext) {
		defer func(t time.Time) {
			writer := wctx.Response()

			elapsed := time.Since(t)
			status := writer.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger := wctx.Logger().WithFields(logrus.Fields{
				"http.status_code":      status,
				"network.bytes_written": writer.BytesWritten(),
				"duration":              elapsed.Nanoseconds(),
			})

			str := fmt.Sprintf("Completed request [%v] [%d %s]", elapsed, status, http.StatusText(status))

			switch {
			case status < 302:
				logger.Info(str)
			case status < 500:
				logger.Warn(str)
			default:
				logger.Error(str)
			}
		}(time.Now())

		next(wctx)
	}
}
