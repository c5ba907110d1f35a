package libgo365

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// UserList represents a list of users returned by Graph API
type UserList struct {
	Value    []*User `json:"value"`
	NextLink string  `json:"@odata.nextLink,omitempty"`
}

// FindUsersOptions represents options for a directory query
type FindUsersOptions struct {
	GivenNamePrefix string
	Top             int
}

// ODataString quotes s as an OData string literal
func ODataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FindUsers queries the organization directory
func (c *Client) FindUsers(ctx context.Context, opts *FindUsersOptions) ([]*User, error) {
	if opts == nil || strings.TrimSpace(opts.GivenNamePrefix) == "" {
		return nil, fmt.Errorf("given name prefix is required")
	}

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("startswith(givenName,%s)", ODataString(strings.TrimSpace(opts.GivenNamePrefix))))
	params.Set("$select", "id,displayName,givenName,surname,mail,userPrincipalName")
	if opts.Top > 0 {
		params.Set("$top", fmt.Sprintf("%d", opts.Top))
	}

	data, err := c.Get(ctx, "/users?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var userList UserList
	if err := json.Unmarshal(data, &userList); err != nil {
		return nil, fmt.Errorf("failed to unmarshal users: %w", err)
	}

	return userList.Value, nil
}

// FindUsersByGivenName returns users whose given name starts with prefix
func (c *Client) FindUsersByGivenName(ctx context.Context, prefix string) ([]*User, error) {
	return c.FindUsers(ctx, &FindUsersOptions{GivenNamePrefix: prefix, Top: 5})
}
