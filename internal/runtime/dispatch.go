package runtime

import (
	"log/slog"
	"net/http"

	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/export"
	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/server"
	"github.com/SoftwearDevelopment/spynl/internal/telemetry"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

// dispatch returns the handler for e: unify the request, validate the
// arguments, call the endpoint, validate and encode its result. Every
// failure goes to the escalator.
func (a *App) dispatch(e endpoint.Endpoint) http.HandlerFunc {
	path := e.Path()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		server.AddLogField(ctx, "endpoint", path)
		server.AddLogField(ctx, "plugin", e.Plugin)
		telemetry.SetEndpoint(ctx, path, e.Plugin)

		rc, err := a.unifier.Unify(w, r, e.Name, path)
		if err != nil {
			a.escalator.Handle(w, r, err)
			return
		}
		rc.Logger = rc.Logger.With(
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("endpoint", path))

		if err := a.validator.Validate(map[string]any(rc.Args), e.Validations, validation.Request); err != nil {
			a.recordValidationFailure(validation.Request)
			a.escalator.Handle(w, rc.Request, err)
			return
		}

		result, err := e.Handler(rc)
		if err != nil {
			a.escalator.Handle(w, rc.Request, err)
			return
		}

		if file, ok := result.(*export.File); ok {
			a.writeFile(w, rc, file)
			return
		}

		result = withStatus(result)
		if err := a.validator.Validate(result, e.Validations, validation.Response); err != nil {
			a.recordValidationFailure(validation.Response)
			a.escalator.Handle(w, rc.Request, err)
			return
		}

		body, err := a.codecs.Encode(result, rc.ContentType, a.cfg.Spynl.Pretty || rc.Args.Bool("pretty"))
		if err != nil {
			a.escalator.Handle(w, rc.Request, err)
			return
		}

		copyHeader(w.Header(), rc.ResponseHeader)
		w.Header().Set("Content-Type", rc.ContentType+"; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// withStatus adds status "ok" to mapping results that carry no status.
// A nil result becomes {"status": "ok"}.
func withStatus(result any) any {
	switch v := result.(type) {
	case nil:
		return map[string]any{"status": "ok"}
	case map[string]any:
		if _, ok := v["status"]; !ok {
			v["status"] = "ok"
		}
		return v
	case request.Args:
		return withStatus(map[string]any(v))
	default:
		return result
	}
}

func (a *App) writeFile(w http.ResponseWriter, rc *request.Context, file *export.File) {
	copyHeader(w.Header(), rc.ResponseHeader)
	w.Header().Set("Content-Type", file.ContentType)
	if disposition := file.ContentDisposition(); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

func (a *App) recordValidationFailure(direction validation.Direction) {
	if a.metrics != nil {
		a.metrics.RecordValidationFailure(string(direction))
	}
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
