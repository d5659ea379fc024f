package checkout

import (
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
)

// callbackTarget is the parsed redirect URL the payment page returns to.
type callbackTarget struct {
	scheme string
	host   string
	path   string
}

func parseCallbackTarget(raw string) (callbackTarget, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return callbackTarget{}, pkgerrors.New(pkgerrors.CodeValidation, "redirect url must be absolute")
	}
	return callbackTarget{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Host),
		path:   strings.TrimSuffix(u.Path, "/"),
	}, nil
}

// reference extracts the payment reference from a return URL. It prefers
// `reference` over `trxref` and returns "" when neither is present. URLs that
// do not point at the target are rejected.
func (t callbackTarget) reference(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback url is malformed")
	}
	if strings.ToLower(u.Scheme) != t.scheme ||
		strings.ToLower(u.Host) != t.host ||
		strings.TrimSuffix(u.Path, "/") != t.path {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "callback url does not match the payment redirect").
			WithDetails(map[string]any{"url": u.Scheme + "://" + u.Host + u.Path})
	}
	q := u.Query()
	if ref := strings.TrimSpace(q.Get("reference")); ref != "" {
		return ref, nil
	}
	return strings.TrimSpace(q.Get("trxref")), nil
}
