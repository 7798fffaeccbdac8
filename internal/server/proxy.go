package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
)

// NewUpstreamProxy создаёт reverse proxy к фронтенду, перед которым стоит guard.
func NewUpstreamProxy(upstreamURL string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("разбор URL фронтенда: %w", err)
	}
	logger = logger.With(slog.String("component", "upstream_proxy"))

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// Фронтенд видит исходный Host для абсолютных ссылок
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("Фронтенд недоступен",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			apierrors.UpstreamUnavailable(w, "Фронтенд временно недоступен")
		},
	}, nil
}
