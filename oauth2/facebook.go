package oauth2

import (
	"golang.org/x/oauth2/facebook"
)

type FacebookOAuth2 struct {
	*BaseOAuth2
}

func NewFacebookOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *FacebookOAuth2 {
	out := FacebookOAuth2{
		BaseOAuth2: NewBaseOAuth2("facebook", clientId, clientSecret, callbackUrl, handleUser),
	}
	out.oauthConfig.Endpoint = facebook.Endpoint
	out.oauthConfig.Scopes = []string{"email", "public_profile"}
	// Graph API only returns the fields you ask for.
	out.UserInfoURL = "https://graph.facebook.com/me?fields=id,name,email"
	return &out
}
