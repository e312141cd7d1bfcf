package slurk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mcdev12/dito/go/clients"
)

// ErrNotFound is returned when the chat server does not know the resource.
var ErrNotFound = errors.New("resource not found")

// Task is the task a user was assigned to.
type Task struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is a chat account as listed by the server.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client talks to the administrative REST API of the chat server.
type Client struct {
	*clients.BaseClient
}

// NewClient creates a client for baseURI (for example
// http://localhost:5000/api/v2) authenticated with token.
func NewClient(baseURI, token string) *Client {
	base := clients.NewBaseClient(baseURI)
	base.SetHeader("Authorization", "Token "+token)
	base.SetHeader("Accept", "application/json")
	return &Client{BaseClient: base}
}

// UserTask returns the task of userID, or nil when the user has none.
func (c *Client) UserTask(ctx context.Context, userID int) (*Task, error) {
	body, err := c.Get(ctx, "/user/"+strconv.Itoa(userID)+"/task")
	if err != nil {
		return nil, wrap(err, "get task of user %d", userID)
	}

	var task *Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("decode task of user %d: %w", userID, err)
	}
	return task, nil
}

// FreezeRoom makes room read only.
func (c *Client) FreezeRoom(ctx context.Context, room string) error {
	payload, err := json.Marshal(map[string]bool{"read_only": true})
	if err != nil {
		return err
	}
	if _, err := c.Put(ctx, "/room/"+url.PathEscape(room), bytes.NewReader(payload)); err != nil {
		return wrap(err, "freeze room %s", room)
	}
	return nil
}

// Users lists every user known to the server.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	body, err := c.Get(ctx, "/users")
	if err != nil {
		return nil, wrap(err, "list users")
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// RenameUser sets the display name of userID.
func (c *Client) RenameUser(ctx context.Context, userID int, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	if _, err := c.Put(ctx, "/user/"+strconv.Itoa(userID), bytes.NewReader(payload)); err != nil {
		return wrap(err, "rename user %d", userID)
	}
	return nil
}

func wrap(err error, format string, args ...any) error {
	var status *clients.StatusError
	if errors.As(err, &status) && status.Code == http.StatusNotFound {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
