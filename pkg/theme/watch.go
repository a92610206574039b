package theme

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

type preferencesNotification struct {
	Preferences appearanceDoc `json:"preferences"`
}

// WatchServer connects to the websocket gateway at wsURL and applies theme
// changes made on other devices. Pushed values are stored locally but not
// sent back to the server. It blocks until ctx is done or the connection
// fails.
func (p *Provider) WatchServer(ctx context.Context, wsURL, token string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u.Host, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if msg.Type != ws.MessageTypeNotification || msg.Action != ws.ActionPreferencesUpdated {
			continue
		}
		p.applyNotification(&msg)
	}
}

func (p *Provider) applyNotification(msg *ws.Message) {
	var n preferencesNotification
	if err := msg.ParsePayload(&n); err != nil {
		p.logger.Debug("ignoring malformed preferences notification", zap.Error(err))
		return
	}
	pref := n.Preferences.Appearance.Theme
	if !pref.Valid() || pref == p.Preference() {
		return
	}
	if p.apply(pref) {
		_ = p.saveLocal(pref)
	}
}
