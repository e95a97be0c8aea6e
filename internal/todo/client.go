package todo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"portal/internal/platform/httpclient"
)

const pathItems = "/todolist/"

// Client is the todo list API client. Every call needs a bearer token.
type Client struct {
	http *httpclient.Client
}

func NewClient(hc *httpclient.Client) (*Client, error) {
	if hc == nil {
		return nil, errors.New("http client is required")
	}
	return &Client{http: hc}, nil
}

func itemPath(id int64) string {
	return fmt.Sprintf("%s%d/", pathItems, id)
}

func (c *Client) List(ctx context.Context, access string) ([]Item, error) {
	var out []Item
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "todo.list",
		Method:    http.MethodGet,
		Path:      pathItems,
		Token:     access,
		Out:       &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create adds an item. Only 201 Created is success.
func (c *Client) Create(ctx context.Context, access string, item NewItem) (*Item, error) {
	var out Item
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "todo.create",
		Method:    http.MethodPost,
		Path:      pathItems,
		Token:     access,
		Body:      item,
		Out:       &out,
		Expect:    []int{http.StatusCreated},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetCompleted(ctx context.Context, access string, id int64, completed bool) (*Item, error) {
	var out Item
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "todo.set_completed",
		Method:    http.MethodPatch,
		Path:      itemPath(id),
		Token:     access,
		Body:      map[string]bool{"completed": completed},
		Out:       &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an item. Only 204 No Content is success.
func (c *Client) Delete(ctx context.Context, access string, id int64) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "todo.delete",
		Method:    http.MethodDelete,
		Path:      itemPath(id),
		Token:     access,
		Expect:    []int{http.StatusNoContent},
	})
	return err
}
