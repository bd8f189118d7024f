package session

import (
	"github.com/dgrijalva/jwt-go"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/util/numberx"
)

// Claims 令牌中客户端需要的声明
type Claims struct {
	ExpiresAt      int64
	OrganizationID string
	TenantID       string
}

// ParseClaims 读取令牌声明, 不校验签名(签名由服务端校验)
func ParseClaims(tokenStr string) (*Claims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return &Claims{}, nil
	}
	c := &Claims{}
	if exp, ok := numberx.GetFloatNumber(mc["exp"]); ok {
		c.ExpiresAt = int64(exp)
	}
	if v, ok := mc["organizationId"].(string); ok {
		c.OrganizationID = v
	}
	if v, ok := mc["tenantId"].(string); ok {
		c.TenantID = v
	}
	return c, nil
}

func fillFromClaims(token *api.AuthToken) *api.AuthToken {
	if token.ExpiresAt != 0 {
		return token
	}
	if c, err := ParseClaims(token.AccessToken); err == nil {
		token.ExpiresAt = c.ExpiresAt
	}
	return token
}
