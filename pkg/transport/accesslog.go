package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/observability"
	"github.com/rhuss/rabbithole/pkg/storage"
)

const accessLogTimeout = 5 * time.Second

// AccessLog returns middleware that writes one storage.RequestRecord per
// chat request to log. storeName labels the write metric. The record holds
// metadata only; message content is never stored.
//
// A failed write is logged and counted but never fails the request.
func AccessLog(log storage.RequestLog, storeName string) Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			start := time.Now()
			tw := &trackingWriter{ResponseWriter: w}

			err := next.HandleChat(ctx, req, tw)

			caller := storage.CallerFromContext(ctx)
			rec := &storage.RequestRecord{
				ID:         api.NewRecordID(),
				RequestID:  RequestIDFromContext(ctx),
				Subject:    caller.Subject,
				Tenant:     caller.Tenant,
				Model:      req.Model,
				Stream:     req.Stream,
				Messages:   len(req.Messages),
				Status:     statusFor(err, tw.streamed),
				DurationMS: time.Since(start).Milliseconds(),
				CreatedAt:  start.UTC(),
			}
			if err != nil {
				rec.Error = err.Error()
			}

			// The request context may already be cancelled by a client
			// disconnect; the record is still written.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accessLogTimeout)
			defer cancel()
			if serr := log.Save(saveCtx, rec); serr != nil {
				observability.RequestLogWritesTotal.WithLabelValues(storeName, "error").Inc()
				slog.Warn("request log write failed",
					"request_id", rec.RequestID,
					"store", storeName,
					"error", serr,
				)
			} else {
				observability.RequestLogWritesTotal.WithLabelValues(storeName, "success").Inc()
			}

			return err
		})
	}
}

// statusFor is the HTTP status the client saw. Once a stream has started
// the status is already 200 regardless of later errors.
func statusFor(err error, streamed bool) int {
	if err == nil || streamed {
		return http.StatusOK
	}
	return HTTPStatusFromError(ToAPIError(err))
}

// trackingWriter notes whether the handler started streaming.
type trackingWriter struct {
	ResponseWriter
	streamed bool
}

func (t *trackingWriter) WriteStream(ctx context.Context, r io.Reader) error {
	t.streamed = true
	return t.ResponseWriter.WriteStream(ctx, r)
}
