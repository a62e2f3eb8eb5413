package upgrade

import "net/url"

// Query parameters the console appends to plan-page return URLs.
const (
	ParamUpgradeToken   = "upgrade_token"
	ParamPendingFeature = "pending_feature"
	ParamPendingPlace   = "pending_place"
)

// WithUpgradeToken appends the one-shot token to a return URL.
func WithUpgradeToken(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(ParamUpgradeToken, token)
	u.RawQuery = q.Encode()
	return u.String()
}

// StripUpgradeParams removes the orchestration parameters from a URL so a
// browser refresh of the final address cannot replay the signal.
func StripUpgradeParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del(ParamUpgradeToken)
	q.Del(ParamPendingFeature)
	q.Del(ParamPendingPlace)
	u.RawQuery = q.Encode()
	return u.String()
}
