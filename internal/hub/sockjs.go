package hub

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const clientBuffer = 16

// Handler serves sockjs sessions under prefix. Subscribing to the staff
// channel needs staffToken when it is set.
func (h *Hub) Handler(prefix, staffToken string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, clientBuffer)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, Subscription{})
				continue
			}
			sub, allowed := resolveSubscription(parsed, staffToken)
			if !allowed {
				_ = session.Close(4003, "access denied")
				return
			}
			h.UpdateSubscription(client, sub)
		}
	})
}

// resolveSubscription defaults the channel to the branch queue.
func resolveSubscription(msg SubscribeMessage, staffToken string) (Subscription, bool) {
	branch := strings.TrimSpace(msg.Branch)
	channel := strings.TrimSpace(msg.Channel)
	if channel == "" {
		if branch == "" {
			return Subscription{}, false
		}
		channel = QueueChannel(branch)
	}
	if channel == StaffChannel && staffToken != "" {
		if subtle.ConstantTimeCompare([]byte(msg.Token), []byte(staffToken)) != 1 {
			return Subscription{}, false
		}
	}
	return Subscription{
		Channel: channel,
		Branch:  branch,
		Service: strings.TrimSpace(msg.Service),
	}, true
}
