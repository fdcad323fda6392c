// Package handler exposes the journal service as an API Gateway proxy
// Lambda.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"reflection-journal/internal/domain"
	"reflection-journal/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	ownerHeader       = "X-Owner-Email"

	codeUnauthorized     = "UNAUTHORIZED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type JournalUseCase interface {
	StartSession(ctx context.Context, owner, name string) (usecase.StartOutput, error)
	Reply(ctx context.Context, owner, sessionID, message string, onFragment func(string)) (usecase.ReplyOutput, error)
	Finish(ctx context.Context, owner, sessionID string) (usecase.FinishOutput, error)
	ListEntries(ctx context.Context, owner string, f usecase.EntryFilter) ([]domain.Entry, error)
	CountEntries(ctx context.Context, owner string) (int, error)
	DeleteEntry(ctx context.Context, owner, id string) error
	ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error)
	RecomputeWeekly(ctx context.Context, owner string) (int, error)
	Ask(ctx context.Context, owner, question string) (string, error)
	SuggestedQuestions() []string
}

type Handler struct {
	uc                  JournalUseCase
	allowHeaderIdentity bool
	logger              *slog.Logger
}

type Option func(*Handler)

// WithHeaderIdentity lets the X-Owner-Email header name the owner when no
// authorizer claim is present. Meant for local runs only.
func WithHeaderIdentity(allow bool) Option {
	return func(h *Handler) {
		h.allowHeaderIdentity = allow
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(uc JournalUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type startRequest struct {
	Name string `json:"name"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Turns     int    `json:"turns"`
}

type finishResponse struct {
	Entry         domain.Entry `json:"entry"`
	WeeklyUpdated bool         `json:"weeklyUpdated"`
}

type entriesResponse struct {
	Entries []domain.Entry `json:"entries"`
}

type countResponse struct {
	Count int `json:"count"`
}

type weeklyResponse struct {
	WeeklySummaries []domain.WeeklySummary `json:"weeklySummaries"`
}

type recomputeResponse struct {
	Weeks int `json:"weeks"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type questionsResponse struct {
	Questions []string `json:"questions"`
}

// Handle routes one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	resp := h.route(ctx, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID
	logger.InfoContext(ctx, "request handled", "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	segments := splitPath(req.Path)
	if len(segments) == 0 {
		return errorJSON(http.StatusNotFound, string(usecase.ErrorNotFound), "route_not_found")
	}

	owner := h.owner(req)
	if owner == "" {
		return errorJSON(http.StatusUnauthorized, codeUnauthorized, "missing_identity")
	}

	method := req.HTTPMethod
	switch {
	case match(segments, "sessions"):
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.startSession(ctx, owner, req)
	case match(segments, "sessions", "*", "messages"):
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.reply(ctx, owner, segments[1], req)
	case match(segments, "sessions", "*", "finish"):
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.finish(ctx, owner, segments[1])
	case match(segments, "entries"):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.listEntries(ctx, owner, req)
	case match(segments, "entries", "count"):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.countEntries(ctx, owner)
	case match(segments, "entries", "*"):
		if method != http.MethodDelete {
			return methodNotAllowed()
		}
		return h.deleteEntry(ctx, owner, segments[1])
	case match(segments, "weekly"):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.listWeekly(ctx, owner)
	case match(segments, "weekly", "recompute"):
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.recomputeWeekly(ctx, owner)
	case match(segments, "ask"):
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.ask(ctx, owner, req)
	case match(segments, "questions"):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return jsonResponse(http.StatusOK, questionsResponse{Questions: h.uc.SuggestedQuestions()})
	}
	return errorJSON(http.StatusNotFound, string(usecase.ErrorNotFound), "route_not_found")
}

func (h *Handler) startSession(ctx context.Context, owner string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body startRequest
	if err := decodeBody(req, &body, true); err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
	}
	out, err := h.uc.StartSession(ctx, owner, body.Name)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusCreated, startResponse{SessionID: out.SessionID})
}

func (h *Handler) reply(ctx context.Context, owner, sessionID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body messageRequest
	if err := decodeBody(req, &body, false); err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
	}
	out, err := h.uc.Reply(ctx, owner, sessionID, body.Message, nil)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, messageResponse{SessionID: out.SessionID, Reply: out.Reply, Turns: out.Turns})
}

func (h *Handler) finish(ctx context.Context, owner, sessionID string) events.APIGatewayProxyResponse {
	out, err := h.uc.Finish(ctx, owner, sessionID)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusCreated, finishResponse{Entry: out.Entry, WeeklyUpdated: out.WeeklyUpdated})
}

func (h *Handler) listEntries(ctx context.Context, owner string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	q := req.QueryStringParameters
	entries, err := h.uc.ListEntries(ctx, owner, usecase.EntryFilter{
		Emotion: q["emotion"],
		Person:  q["person"],
		Topic:   q["topic"],
		From:    q["from"],
		To:      q["to"],
	})
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) countEntries(ctx context.Context, owner string) events.APIGatewayProxyResponse {
	n, err := h.uc.CountEntries(ctx, owner)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, countResponse{Count: n})
}

func (h *Handler) deleteEntry(ctx context.Context, owner, id string) events.APIGatewayProxyResponse {
	if err := h.uc.DeleteEntry(ctx, owner, id); err != nil {
		return h.mapError(ctx, err)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: map[string]string{}}
}

func (h *Handler) listWeekly(ctx context.Context, owner string) events.APIGatewayProxyResponse {
	rows, err := h.uc.ListWeeklySummaries(ctx, owner)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, weeklyResponse{WeeklySummaries: rows})
}

func (h *Handler) recomputeWeekly(ctx context.Context, owner string) events.APIGatewayProxyResponse {
	n, err := h.uc.RecomputeWeekly(ctx, owner)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, recomputeResponse{Weeks: n})
}

func (h *Handler) ask(ctx context.Context, owner string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body askRequest
	if err := decodeBody(req, &body, false); err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
	}
	answer, err := h.uc.Ask(ctx, owner, body.Question)
	if err != nil {
		return h.mapError(ctx, err)
	}
	return jsonResponse(http.StatusOK, askResponse{Answer: answer})
}

// owner returns the caller's identity from the authorizer, or from the
// owner header when allowed.
func (h *Handler) owner(req events.APIGatewayProxyRequest) string {
	auth := req.RequestContext.Authorizer
	if claims, ok := auth["claims"].(map[string]interface{}); ok {
		if email, ok := claims["email"].(string); ok && strings.TrimSpace(email) != "" {
			return strings.TrimSpace(email)
		}
	}
	if email, ok := auth["email"].(string); ok && strings.TrimSpace(email) != "" {
		return strings.TrimSpace(email)
	}
	if h.allowHeaderIdentity {
		return headerValue(req.Headers, ownerHeader)
	}
	return ""
}

func (h *Handler) mapError(ctx context.Context, err error) events.APIGatewayProxyResponse {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		h.logger.ErrorContext(ctx, "unexpected error", "error", err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "unexpected_error")
	}
	status := http.StatusInternalServerError
	switch uerr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorConflict:
		status = http.StatusConflict
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", "code", uerr.Code, "reason", uerr.Reason, "error", uerr.Err)
	} else {
		h.logger.WarnContext(ctx, "request rejected", "code", uerr.Code, "reason", uerr.Reason)
	}
	return errorJSON(status, string(uerr.Code), uerr.Reason)
}

func decodeBody(req events.APIGatewayProxyRequest, v any, allowEmpty bool) error {
	raw := req.Body
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return err
		}
		raw = string(b)
	}
	if strings.TrimSpace(raw) == "" {
		if allowEmpty {
			return nil
		}
		return errors.New("handler: empty body")
	}
	return json.Unmarshal([]byte(raw), v)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "encode_error")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func errorJSON(status int, code, reason string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: code, Reason: reason})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func methodNotAllowed() events.APIGatewayProxyResponse {
	return errorJSON(http.StatusMethodNotAllowed, codeMethodNotAllowed, "method_not_allowed")
}

func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// match compares path segments with a pattern where "*" matches any one
// segment.
func match(segments []string, pattern ...string) bool {
	if len(segments) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != segments[i] {
			return false
		}
	}
	return true
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
