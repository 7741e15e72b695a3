package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/hospital-voice-booking/cmd/mainconfig"
	"github.com/wolfman30/hospital-voice-booking/internal/api/router"
	"github.com/wolfman30/hospital-voice-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/http/handlers"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// The lambda serves the same webhook routes as cmd/api behind an API Gateway
// HTTP API. Sessions must live outside the process (dynamodb or redis), since
// consecutive turns of a call may land on different instances.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("voice-lambda")
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.SessionBackend == appconfig.SessionBackendMemory {
		logger.Warn("memory sessions do not survive across lambda instances; use dynamodb or redis")
	}

	ctx := context.Background()
	clients, _, err := mainconfig.ConnectClients(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect infrastructure", "error", err)
		os.Exit(1)
	}
	services, err := bootstrap.BuildServices(ctx, cfg, clients, nil, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	h := router.New(&router.Config{
		Logger: logger,
		Voice:  handlers.NewVoiceHandler(handlers.VoiceHandlerConfig{Engine: services.Engine, Logger: logger}),
	})
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, h, evt)
	})
}

func handle(ctx context.Context, h http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if path == "/_health" {
		path = "/health"
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid request"}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if len(evt.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(evt.Cookies, "; "))
	}
	req.RemoteAddr = evt.RequestContext.HTTP.SourceIP
	if ip := evt.RequestContext.HTTP.SourceIP; ip != "" && headerValue(evt.Headers, "x-real-ip") == "" {
		req.Header.Set("X-Real-Ip", ip)
	}
	if host := strings.TrimSpace(evt.RequestContext.DomainName); host != "" {
		req.Host = host
	}
	if id := evt.RequestContext.RequestID; id != "" && headerValue(evt.Headers, "x-request-id") == "" {
		req.Header.Set("X-Request-Id", id)
	}

	w := newResponseWriter()
	h.ServeHTTP(w, req)
	return w.response(), nil
}

// responseWriter buffers a handler's response for API Gateway.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *responseWriter) response() events.APIGatewayV2HTTPResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       w.body.String(),
		Headers:    map[string]string{},
	}
	for k, v := range w.header {
		if len(v) > 0 {
			out.Headers[strings.ToLower(k)] = strings.Join(v, ",")
		}
	}
	return out
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
