package vk

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"

	"vkrelay/internal/poster"
)

const (
	methodMessagesSend   = "messages.send"
	methodMessagesDelete = "messages.delete"
)

// SendMessage sends text to a conversation and returns the message id.
func (c *Client) SendMessage(ctx context.Context, peerID int64, text string) (int64, error) {
	tok, err := c.token(methodMessagesSend)
	if err != nil {
		return 0, err
	}
	params := url.Values{
		"peer_id":   {strconv.FormatInt(peerID, 10)},
		"message":   {text},
		"random_id": {strconv.FormatInt(int64(rand.Int32()), 10)},
	}
	var id int64
	if err := c.call(ctx, methodMessagesSend, tok, params, &id); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.Wrapf(poster.ErrTransport, "vk %s: response without message id", methodMessagesSend)
	}
	return id, nil
}

// DeleteMessage deletes a message for every participant.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	tok, err := c.token(methodMessagesDelete)
	if err != nil {
		return err
	}
	id := strconv.FormatInt(messageID, 10)
	params := url.Values{
		"message_ids":    {id},
		"delete_for_all": {"1"},
	}
	var out map[string]int
	if err := c.call(ctx, methodMessagesDelete, tok, params, &out); err != nil {
		return err
	}
	if v, ok := out[id]; ok && v != 1 {
		return errors.Wrapf(poster.ErrForbidden, "vk %s: message %s was not deleted", methodMessagesDelete, id)
	}
	return nil
}

// Messages exposes conversation messages as a poster.RemotePoster so chat
// jobs run on the same registry as wall jobs. Targets are peer ids.
func (c *Client) Messages() poster.RemotePoster { return messenger{c: c} }

type messenger struct{ c *Client }

func (m messenger) Publish(ctx context.Context, peer poster.Target, text string) (poster.PostHandle, error) {
	id, err := m.c.SendMessage(ctx, int64(peer), text)
	if err != nil {
		return poster.PostHandle{}, err
	}
	return poster.PostHandle{PostID: id}, nil
}

func (m messenger) Retract(ctx context.Context, _ poster.Target, h poster.PostHandle) error {
	return m.c.DeleteMessage(ctx, h.PostID)
}
