// validator.go — проверка входящих запросов API по OpenAPI-контракту.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
)

// RequestValidator — middleware валидации запросов по OpenAPI.
// Запросы к путям, отсутствующим в контракте, пропускаются без проверки.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewRequestValidator создаёт валидатор по загруженному контракту.
func NewRequestValidator(doc *openapi3.T, logger *slog.Logger) (*RequestValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI router: %w", err)
	}
	return &RequestValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware, отвечающий 400 VALIDATION_ERROR
// на запросы, не соответствующие контракту.
func (v *RequestValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				// Неизвестный путь или метод — решает router сервера
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					v.logger.Debug("OpenAPI: маршрут не определён", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validationMessage формирует краткое описание ошибки валидации.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("Некорректный параметр %s: %s", reqErr.Parameter.Name, reqErr.Error())
		}
		if reqErr.RequestBody != nil {
			return "Некорректное тело запроса: " + reqErr.Error()
		}
	}
	return "Запрос не соответствует контракту API: " + err.Error()
}
