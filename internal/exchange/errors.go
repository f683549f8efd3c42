package exchange

import (
	"errors"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// classifyError maps a go-binance error into the domain's two error kinds:
// *domain.ExchangeError for a well-formed API rejection, *domain.TransportError
// for anything else (network failure, context deadline, decode failure).
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *futures.APIError
	if errors.As(err, &apiErr) {
		return &domain.ExchangeError{Code: int(apiErr.Code), Message: apiErr.Message}
	}

	return &domain.TransportError{Reason: "network", Err: err}
}
