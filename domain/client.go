package domain

import "time"

// FederatedJWT describes an external issuer whose bearer assertions are
// accepted as credentials for a specific client.
type FederatedJWT struct {
	Issuer   string `bson:"issuer"   json:"issuer"   validate:"required,url"`
	Audience string `bson:"audience" json:"audience" validate:"required"`
	Subject  string `bson:"subject"  json:"subject"  validate:"required"`
}

// OIDCClient is a registered relying party.
//
// SecretHash holds the bcrypt hash of the client secret; the plaintext is
// only ever returned once, at creation time.
type OIDCClient struct {
	ID                 string        `bson:"_id"                             json:"id"                           validate:"required,client_id"`
	Name               string        `bson:"name"                            json:"name"                         validate:"required,max=50"`
	CallbackURLs       []string      `bson:"callback_urls"                   json:"callbackUrls"                 validate:"dive,callback_url"`
	LogoutCallbackURLs []string      `bson:"logout_callback_urls,omitempty"  json:"logoutCallbackUrls,omitempty" validate:"dive,callback_url"`
	SecretHash         string        `bson:"secret_hash,omitempty"           json:"-"`
	FederatedJWT       *FederatedJWT `bson:"federated_jwt,omitempty"         json:"federatedJWT,omitempty"`
	AccessCodes        []string      `bson:"access_codes,omitempty"          json:"accessCodes,omitempty"`
	CreatedAt          time.Time     `bson:"created_at"                      json:"createdAt"`
}

// IsPublic reports whether the client has no secret and no federated trust,
// so it cannot authenticate at the token endpoint.
func (c *OIDCClient) IsPublic() bool {
	return c.SecretHash == "" && c.FederatedJWT == nil
}

// IsRestricted reports whether authorization requests must present one of the
// client's access codes.
func (c *OIDCClient) IsRestricted() bool {
	return len(c.AccessCodes) > 0
}
