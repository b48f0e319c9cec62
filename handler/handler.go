// Package handler maps API Gateway proxy requests onto the relay and install
// use cases.
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slack-relay/internal/domain"
	"slack-relay/internal/usecase"
)

const (
	headerTimestamp     = "X-Slack-Request-Timestamp"
	headerSignature     = "X-Slack-Signature"
	headerCorrelationID = "X-Correlation-Id"

	installedMessage = "App installed successfully! You can now use the bot in this workspace."
)

type EventHandler interface {
	HandleEvent(ctx context.Context, in usecase.EventInput) (usecase.EventOutput, error)
}

type Installer interface {
	Install(ctx context.Context, code string) (domain.TenantCredential, error)
}

// Response is a transport-neutral HTTP reply.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

type Handler struct {
	relay   EventHandler
	install Installer
	log     zerolog.Logger
}

// NewHandler wires the use cases. install may be nil when OAuth is not
// configured.
func NewHandler(relay EventHandler, install Installer, log zerolog.Logger) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	return &Handler{relay: relay, install: install, log: log}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With().Str("correlation_id", correlationID).Logger()
	ctx = log.WithContext(ctx)

	var resp Response
	switch route := Route(req.Path); {
	case route == RouteEvents && req.HTTPMethod == http.MethodPost:
		body, err := decodeBody(req)
		if err != nil {
			resp = Response{Status: http.StatusBadRequest, ContentType: "text/plain", Body: "Invalid body"}
			break
		}
		out, err := h.relay.HandleEvent(ctx, usecase.EventInput{
			Timestamp: header(req, headerTimestamp),
			Signature: header(req, headerSignature),
			Body:      body,
		})
		resp = ForEvent(log, out, err)
	case route == RouteOAuth && req.HTTPMethod == http.MethodGet && h.install != nil:
		_, err := h.install.Install(ctx, req.QueryStringParameters["code"])
		resp = ForInstall(err)
	default:
		resp = Response{Status: http.StatusNotFound, ContentType: "text/plain", Body: "Not found"}
	}

	headers := map[string]string{headerCorrelationID: correlationID}
	if resp.ContentType != "" {
		headers["Content-Type"] = resp.ContentType
	}
	return events.APIGatewayProxyResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       resp.Body,
	}, nil
}

const (
	RouteEvents  = "events"
	RouteOAuth   = "oauth_redirect"
	RouteUnknown = ""
)

// Route names the endpoint for path, accepting both the /slack/ prefixed and
// bare forms.
func Route(path string) string {
	path = strings.TrimRight(path, "/")
	switch path {
	case "/slack/events", "/events":
		return RouteEvents
	case "/slack/oauth_redirect", "/oauth_redirect":
		return RouteOAuth
	}
	return RouteUnknown
}

// ForEvent maps the relay outcome onto what the platform sees: the challenge,
// a bare 200, or 400 on a bad signature.
func ForEvent(log zerolog.Logger, out usecase.EventOutput, err error) Response {
	if err != nil {
		if usecase.CodeOf(err) == usecase.ErrorAuthenticationFailed {
			return Response{Status: http.StatusBadRequest, ContentType: "text/plain", Body: "Invalid signature"}
		}
		log.Error().Err(err).Msg("event handling failed")
		return Response{Status: http.StatusOK}
	}
	if out.Handshake {
		return Response{Status: http.StatusOK, ContentType: "text/plain", Body: out.Challenge}
	}
	return Response{Status: http.StatusOK}
}

func ForInstall(err error) Response {
	switch usecase.CodeOf(err) {
	case "":
		return Response{Status: http.StatusOK, ContentType: "text/plain", Body: installedMessage}
	case usecase.ErrorInvalidInput:
		return Response{Status: http.StatusBadRequest, ContentType: "text/plain", Body: "Missing code from Slack"}
	default:
		return Response{Status: http.StatusInternalServerError, ContentType: "text/plain", Body: "OAuth failed"}
	}
}

func decodeBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// header looks a header up case-insensitively in both header maps.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}
