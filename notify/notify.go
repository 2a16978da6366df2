// Package notify sends notifications to the user.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
)

const titlePrefix = "mp4-concat: "

// BaseNotifier sends a raw notification.
type BaseNotifier interface {
	Notify(ctx context.Context, title string, message string, priority int) error
}

type dummyNotifier struct{}

// NewDummyNotifier returns a notifier that does nothing.
func NewDummyNotifier() BaseNotifier {
	return &dummyNotifier{}
}

func (*dummyNotifier) Notify(context.Context, string, string, int) error {
	return nil
}

type gotifyMessage struct {
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Message  string `json:"message"`
}

type gotifyNotifier struct {
	*http.Client
	endpoint string
	token    string
}

// NewGotifyNotifier returns a notifier pushing to a Gotify server.
func NewGotifyNotifier(client *http.Client, endpoint string, token string) BaseNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &gotifyNotifier{
		Client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
	}
}

func (n *gotifyNotifier) Notify(
	ctx context.Context,
	title string,
	message string,
	priority int,
) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if message == "" {
		message = title
	}

	var bb bytes.Buffer
	if err := json.NewEncoder(&bb).Encode(gotifyMessage{
		Title:    titlePrefix + title,
		Message:  message,
		Priority: priority,
	}); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+"/message", &bb)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+n.token)

	resp, err := n.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification failed (%d): %s", resp.StatusCode, string(out))
	}

	return nil
}

type shoutrrrNotifier struct {
	*router.ServiceRouter
}

// NewShoutrrrNotifier returns a notifier sending to the shoutrrr URLs.
func NewShoutrrrNotifier(urls ...string) (BaseNotifier, error) {
	r, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, err
	}
	return &shoutrrrNotifier{r}, nil
}

func (n *shoutrrrNotifier) Notify(
	_ context.Context,
	title string,
	message string,
	priority int,
) error {
	if message == "" {
		message = title
	}
	errs := n.Send(message, &types.Params{
		"title":    titlePrefix + title,
		"priority": strconv.Itoa(priority),
	})
	return errors.Join(errs...)
}
