package oauth2

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// OktaOAuth2 speaks plain OIDC against an Okta org.  All endpoints derive
// from the issuer URL (e.g. https://dev-123456.okta.com/oauth2/default).
type OktaOAuth2 struct {
	*BaseOAuth2
	Issuer string
}

func NewOktaOAuth2(issuer string, clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *OktaOAuth2 {
	if issuer == "" {
		issuer = os.Getenv("OAUTH2_OKTA_ISSUER")
	}
	issuer = strings.TrimSuffix(issuer, "/")
	out := OktaOAuth2{
		BaseOAuth2: NewBaseOAuth2("okta", clientId, clientSecret, callbackUrl, handleUser),
		Issuer:     issuer,
	}
	out.oauthConfig.Endpoint = oauth2.Endpoint{
		AuthURL:  issuer + "/v1/authorize",
		TokenURL: issuer + "/v1/token",
	}
	out.oauthConfig.Scopes = []string{"openid", "profile", "email"}
	out.UserInfoURL = issuer + "/v1/userinfo"
	return &out
}
