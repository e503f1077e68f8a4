// Package validation содержит функции валидации входных данных.
package validation

// Валюты, принимаемые Revolut Merchant API.
var supportedCurrencies = map[string]struct{}{
	"AED": {}, "AUD": {}, "BGN": {}, "CAD": {}, "CHF": {}, "CZK": {}, "DKK": {},
	"EUR": {}, "GBP": {}, "HKD": {}, "HRK": {}, "HUF": {}, "ISK": {}, "JPY": {},
	"NOK": {}, "NZD": {}, "PLN": {}, "RON": {}, "SAR": {}, "SEK": {}, "SGD": {},
	"THB": {}, "TRY": {}, "USD": {}, "ZAR": {},
}

// IsSupportedCurrency проверяет, принимает ли платёжный провайдер указанную валюту.
func IsSupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[code]
	return ok
}
