package authctl

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/common"
	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// AccessTokenHeader is the metadata key carrying the session token.
const AccessTokenHeader = common.AccessTokenHeaderName

// Client calls gophauth.v1.Auth.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(AccessTokenHeader, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) call(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	out, err := gs.Invoke(ctx, c.conn, method, in)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "Ping", nil)
	return err
}

// Register returns the subject of the new account. email may be empty.
func (c *Client) Register(ctx context.Context, username, password, email string) (string, error) {
	in := map[string]any{"username": username, "password": password}
	if email != "" {
		in["email"] = email
	}
	out, err := c.call(ctx, "Register", in)
	if err != nil {
		return "", err
	}
	sub, _ := out["sub"].(string)
	return sub, nil
}

// Login returns an access token. code is the TOTP code and may be empty.
func (c *Client) Login(ctx context.Context, username, password, code string) (string, error) {
	in := map[string]any{"username": username, "password": password}
	if code != "" {
		in["code"] = code
	}
	out, err := c.call(ctx, "Login", in)
	if err != nil {
		return "", err
	}
	token, _ := out["access_token"].(string)
	return token, nil
}

func (c *Client) Session(ctx context.Context, token string) (map[string]any, error) {
	return c.call(withAccessToken(ctx, token), "Session", nil)
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.call(withAccessToken(ctx, token), "Logout", nil)
	return err
}
