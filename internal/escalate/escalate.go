// Package escalate turns any error reaching the top of the request pipeline
// into an HTTP status, a response envelope, one log record and, when
// warranted, a monitoring incident.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/metrics"
	"github.com/SoftwearDevelopment/spynl/internal/monitoring"
	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/server"
	"github.com/SoftwearDevelopment/spynl/internal/telemetry"
)

// InternalErrorMessage replaces the message of unanticipated errors.
const InternalErrorMessage = "An internal server error occured."

// Report is the classified form of an error.
type Report struct {
	Status           int
	Type             string
	Message          string
	DeveloperMessage string
	DebugMessage     string
	Details          any
	Source           string
	Stack            string

	// Monitor is true when the error goes to external monitoring
	Monitor bool

	Err error
}

// LogType is Type without a trailing "Exception".
func (r Report) LogType() string {
	return strings.TrimSuffix(r.Type, "Exception")
}

// Body returns the response envelope. The debug message is never included.
func (r Report) Body() map[string]any {
	body := map[string]any{
		"status":  "error",
		"type":    r.Type,
		"message": r.Message,
	}
	if r.DeveloperMessage != "" {
		body["developer_message"] = r.DeveloperMessage
	}
	if r.Details != nil {
		body["details"] = r.Details
	}
	return body
}

// Classify maps err to a Report. Spynl errors come first, then not found,
// permission denied, other HTTP errors, argument validation errors and
// finally anything else, which is masked as an internal server error.
func Classify(err error, r *http.Request) Report {
	var (
		spynlErr  *domain.Error
		httpErr   *domain.HTTPError
		denied    *domain.PermissionDenied
		fieldErrs validator.ValidationErrors
	)

	var rep Report
	switch {
	case errors.As(err, &spynlErr):
		rep = Report{
			Status:           spynlErr.HTTPStatus(),
			Type:             spynlErr.Kind.String(),
			Message:          spynlErr.Message,
			DeveloperMessage: spynlErr.Developer(),
			DebugMessage:     spynlErr.DebugMessage,
			Details:          spynlErr.Details,
			Source:           spynlErr.Source,
		}
		if spynlErr.Kind == domain.KindInternal {
			rep.DebugMessage = spynlErr.Debug()
			rep.Message = InternalErrorMessage
			rep.DeveloperMessage = ""
		}
		rep.Monitor = spynlErr.Monitor || reportable(rep.Status)

	case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
		rep = Report{
			Status:  http.StatusNotFound,
			Type:    httpErr.Name(),
			Message: fmt.Sprintf("No endpoint found for path '%s'.", r.URL.Path),
			Source:  httpErr.Source,
		}

	case errors.As(err, &denied):
		rep = Report{
			Status:  http.StatusForbidden,
			Type:    "HTTPForbidden",
			Message: denied.Error(),
			Source:  denied.Source,
		}

	case errors.As(err, &httpErr):
		rep = Report{
			Status:  httpErr.Status,
			Type:    httpErr.Name(),
			Message: httpErr.Explanation(),
			Details: httpErr.Details,
			Source:  httpErr.Source,
		}
		if httpErr.Status >= http.StatusInternalServerError {
			rep.Message = InternalErrorMessage
			rep.DebugMessage = httpErr.Detail
		} else if httpErr.Detail != "" {
			if errType, msg, found := strings.Cut(httpErr.Detail, ":"); found {
				rep.Type, rep.Message = strings.TrimSpace(errType), strings.TrimSpace(msg)
			} else {
				rep.Message = httpErr.Detail
			}
		}
		rep.Monitor = reportable(rep.Status)

	case errors.As(err, &fieldErrs):
		rep = Report{
			Status:  http.StatusBadRequest,
			Type:    "ValidationError",
			Message: "One or more arguments are invalid.",
			Details: fieldDetails(fieldErrs),
			Monitor: true,
		}

	default:
		rep = Report{
			Status:       http.StatusInternalServerError,
			Type:         "InternalServerError",
			Message:      InternalErrorMessage,
			DebugMessage: err.Error(),
			Monitor:      true,
		}
	}

	var panicErr *server.PanicError
	if errors.As(err, &panicErr) {
		if rep.Source == "" {
			rep.Source = panicErr.Source
		}
		rep.Stack = panicErr.Stack
	}

	rep.Err = err
	return rep
}

// reportable is false for forbidden and not found responses.
func reportable(status int) bool {
	return status != http.StatusForbidden && status != http.StatusNotFound
}

func fieldDetails(errs validator.ValidationErrors) []map[string]any {
	details := make([]map[string]any, 0, len(errs))
	for _, fe := range errs {
		d := map[string]any{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		}
		if fe.Param() != "" {
			d["param"] = fe.Param()
		}
		details = append(details, d)
	}
	return details
}

// Escalator writes error responses.
type Escalator struct {
	Codecs   *codec.Registry
	Reporter monitoring.Reporter
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Pretty   bool
}

// Handle classifies err, logs it once, reports it if required and writes
// the response envelope in the negotiated content type.
func (e *Escalator) Handle(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	rep := Classify(err, r)

	e.log(ctx, r, rep)
	server.AddLogField(ctx, "err_type", rep.LogType())

	if e.Metrics != nil {
		e.Metrics.RecordError(rep.LogType(), rep.Status)
	}
	telemetry.RecordError(ctx, err, rep.LogType(), rep.Status)

	if rep.Monitor && e.Reporter != nil {
		if reportErr := e.Reporter.Report(context.WithoutCancel(ctx), e.incident(r, rep)); reportErr != nil {
			e.logger().Warn("failed to report incident",
				slog.String("request_id", server.GetRequestID(ctx)),
				slog.String("error", reportErr.Error()))
		}
	}

	e.write(w, r, rep)
}

func (e *Escalator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Escalator) log(ctx context.Context, r *http.Request, rep Report) {
	level := slog.LevelWarn
	if rep.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("err_type", rep.LogType()),
		slog.String("message", rep.Message),
		slog.Int("status", rep.Status),
		slog.String("developer_message", rep.DeveloperMessage),
		slog.String("debug_message", rep.DebugMessage),
		slog.Group("user",
			slog.String("ipaddress", request.ClientIP(r)),
			slog.String("sid", r.Header.Get(request.HeaderSessionID)),
		),
		slog.String("url", r.URL.String()),
		slog.String("err_source", rep.Source),
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.Bool("monitor", rep.Monitor),
		slog.String("error", rep.Err.Error()),
	}
	if rep.Stack != "" {
		attrs = append(attrs, slog.String("stack", rep.Stack))
	}
	e.logger().LogAttrs(ctx, level, "request failed", attrs...)
}

func (e *Escalator) incident(r *http.Request, rep Report) monitoring.Incident {
	inc := monitoring.NewIncident()
	inc.Type = rep.LogType()
	inc.Message = rep.Message
	inc.DeveloperMessage = rep.DeveloperMessage
	inc.DebugMessage = rep.DebugMessage
	if inc.DebugMessage == "" {
		inc.DebugMessage = rep.Err.Error()
	}
	inc.Status = rep.Status
	inc.URL = r.URL.Path
	inc.Method = r.Method
	inc.IP = request.ClientIP(r)
	inc.SessionID = r.Header.Get(request.HeaderSessionID)
	inc.RequestID = server.GetRequestID(r.Context())
	inc.Source = rep.Source
	return inc
}

func (e *Escalator) write(w http.ResponseWriter, r *http.Request, rep Report) {
	contentType := codec.ContentTypeJSON
	var body []byte
	var err error
	if e.Codecs != nil {
		contentType = e.Codecs.Negotiate(r.Header.Get("Accept"))
		body, err = e.Codecs.Encode(rep.Body(), contentType, e.Pretty)
		if err != nil && contentType != codec.ContentTypeJSON {
			contentType = codec.ContentTypeJSON
			body, err = e.Codecs.Encode(rep.Body(), contentType, e.Pretty)
		}
	} else {
		body, err = codec.JSONHandler().Encode(rep.Body(), nil, e.Pretty)
	}
	if err != nil {
		e.logger().Error("failed to encode error response", slog.String("error", err.Error()))
		http.Error(w, InternalErrorMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(rep.Status)
	_, _ = w.Write(body)
}
