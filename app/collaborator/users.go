package collaborator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type UsersClient struct {
	baseClient
}

func NewUsersClient(baseURL, apiKey string, timeout time.Duration) *UsersClient {
	return &UsersClient{baseClient: newBaseClient(baseURL, apiKey, timeout)}
}

type employeeCountResponse struct {
	Count *int `json:"count"`
}

// ActiveEmployeeCount returns how many active employees the manager currently has.
func (c *UsersClient) ActiveEmployeeCount(ctx context.Context, managerID string) (int, error) {
	var resp employeeCountResponse
	path := "/managers/" + url.PathEscape(managerID) + "/employees/active-count"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil || *resp.Count < 0 {
		return 0, fmt.Errorf("%w: malformed employee count for manager %s", ErrCollaborator, managerID)
	}
	return *resp.Count, nil
}
