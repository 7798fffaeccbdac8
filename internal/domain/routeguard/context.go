package routeguard

import "context"

type authFailureKey struct{}

// WithAuthUnavailable отмечает запрос, личность которого не удалось
// проверить из-за недоступности провайдера аутентификации.
func WithAuthUnavailable(ctx context.Context, cause error) context.Context {
	return context.WithValue(ctx, authFailureKey{}, cause)
}

// AuthUnavailable возвращает причину сбоя провайдера или nil.
func AuthUnavailable(ctx context.Context) error {
	err, _ := ctx.Value(authFailureKey{}).(error)
	return err
}
